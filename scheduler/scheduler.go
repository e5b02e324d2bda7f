// Package scheduler triggers crawl cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/logger"
	"github.com/robfig/cron/v3"
)

// Runner runs one crawl cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*crawl.Summary, error)
}

// DefaultInterval is used when no interval is configured.
const DefaultInterval = "@every 1h"

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule accepts a Go duration ("30m") or a cron expression
// ("0 */2 * * *", "@hourly") and returns a cron spec.
func ParseSchedule(interval string) (string, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return DefaultInterval, nil
	}

	if d, err := time.ParseDuration(interval); err == nil {
		if d < time.Second {
			return "", fmt.Errorf("crawl interval %s is shorter than one second", d)
		}
		return "@every " + d.String(), nil
	}

	if _, err := parser.Parse(interval); err != nil {
		return "", fmt.Errorf("invalid crawl interval %q: %w", interval, err)
	}
	return interval, nil
}

// Scheduler runs the crawl on a schedule until stopped.
type Scheduler struct {
	runner     Runner
	cron       *cron.Cron
	spec       string
	entry      cron.EntryID
	runOnStart bool
	log        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for interval. If runOnStart is set, Start also
// triggers one cycle immediately.
func New(runner Runner, interval string, runOnStart bool, log logger.Logger) (*Scheduler, error) {
	spec, err := ParseSchedule(interval)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}

	return &Scheduler{
		runner: runner,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:       spec,
		runOnStart: runOnStart,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start registers the crawl job and starts the cron loop.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.spec, s.Trigger)
	if err != nil {
		return fmt.Errorf("failed to schedule crawl: %w", err)
	}
	s.entry = id
	s.cron.Start()

	s.log.Info("Crawl scheduler started",
		logger.String("schedule", s.spec),
		logger.Any("next_run", s.Next()))

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Trigger()
		}()
	}

	return nil
}

// Stop cancels any running cycle and waits for it to return.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping crawl scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("Crawl scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Trigger runs one cycle with the scheduler's context. A cycle already in
// progress is skipped.
func (s *Scheduler) Trigger() {
	summary, err := s.runner.RunCycle(s.ctx)
	switch {
	case errors.Is(err, crawl.ErrCycleInProgress):
		s.log.Info("Skipping scheduled crawl, a cycle is already running")
	case err != nil:
		s.log.Error("Scheduled crawl failed", logger.Err(err))
	default:
		s.log.Info("Scheduled crawl completed",
			logger.Int("found", summary.TotalFound),
			logger.Int("saved", summary.TotalSaved),
			logger.Int("source_errors", len(summary.PerSourceErrors)))
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(fields(keysAndValues), logger.Err(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	var out []logger.Field
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
