package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/logger"
)

// CrawlResponse is the body of POST /scheduler/crawl.
type CrawlResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Summary *crawl.Summary `json:"summary,omitempty"`
}

// HandleTriggerCrawl handles POST /scheduler/crawl. The cycle runs to
// completion even if the client disconnects.
func (s *Server) HandleTriggerCrawl(c *gin.Context) {
	if s.runner == nil {
		errorResponse(c, http.StatusServiceUnavailable, "unavailable", "Crawling is not configured")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	summary, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, crawl.ErrCycleInProgress):
		c.JSON(http.StatusConflict, CrawlResponse{
			Success: false,
			Message: "A crawl cycle is already running",
		})
		return
	case err != nil:
		s.log.Error("Manual crawl failed", logger.Err(err))
		c.JSON(http.StatusInternalServerError, CrawlResponse{
			Success: false,
			Message: "Crawl failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CrawlResponse{
		Success: true,
		Message: crawlMessage(summary),
		Summary: summary,
	})
}

func crawlMessage(summary *crawl.Summary) string {
	if len(summary.PerSourceErrors) == 0 {
		return "Crawl completed"
	}
	failed := make([]string, len(summary.PerSourceErrors))
	for i, se := range summary.PerSourceErrors {
		failed[i] = se.Source
	}
	return "Crawl completed with source errors: " + strings.Join(failed, ", ")
}
