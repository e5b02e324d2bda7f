// Package api exposes stored articles and the manual crawl trigger over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleRunner runs one crawl cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*crawl.Summary, error)
}

// SignatureVerifier checks signed content links. Content stores that serve
// their own signed URLs (the file backend) implement it.
type SignatureVerifier interface {
	Verify(key, expires, signature string) error
}

// Config wires the server's collaborators. Runner, Gatherer and Logger are
// optional.
type Config struct {
	Repository article.Repository
	Content    content.Store
	Runner     CycleRunner
	Sources    []string
	Gatherer   prometheus.Gatherer
	Logger     logger.Logger
}

// Server serves the newscrawl HTTP API.
type Server struct {
	repo     article.Repository
	store    content.Store
	verifier SignatureVerifier
	runner   CycleRunner
	sources  []string
	gatherer prometheus.Gatherer
	log      logger.Logger
}

// NewServer creates a server from cfg.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		repo:     cfg.Repository,
		store:    cfg.Content,
		runner:   cfg.Runner,
		sources:  cfg.Sources,
		gatherer: cfg.Gatherer,
		log:      log,
	}
	if v, ok := cfg.Content.(SignatureVerifier); ok {
		s.verifier = v
	}
	if s.sources == nil {
		s.sources = []string{}
	}

	return s
}

// SetupRouter configures the Gin router with all routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(recoveryMiddleware(s.log), loggerMiddleware(s.log), corsMiddleware())

	news := router.Group("/news")
	news.GET("", s.HandleListNews)
	news.GET("/search", s.HandleSearchNews)
	news.GET("/source/:source", s.HandleNewsBySource)
	news.GET("/geopolitical", s.HandleGeopoliticalNews)
	news.GET("/country/:country", s.HandleNewsByCountry)
	news.GET("/statistics", s.HandleStatistics)
	news.GET("/:id", s.HandleGetArticle)
	news.GET("/:id/content", s.HandleGetContent)
	news.GET("/:id/content-url", s.HandleGetContentURL)

	router.POST("/scheduler/crawl", s.HandleTriggerCrawl)
	router.GET("/sources", s.HandleListSources)
	router.GET("/healthz", s.HandleHealth)

	if s.verifier != nil {
		router.GET("/content/*key", s.HandleSignedContent)
	}
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleListSources handles GET /sources.
func (s *Server) HandleListSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.sources})
}

// errorResponse writes the standard error body.
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// handleError maps repository and content store errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, article.ErrArticleNotFound):
		errorResponse(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, content.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "content_not_found", err.Error())
	case errors.Is(err, content.ErrInvalidSignature):
		errorResponse(c, http.StatusForbidden, "invalid_signature", err.Error())
	case errors.Is(err, content.ErrExpired):
		errorResponse(c, http.StatusForbidden, "expired", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errorResponse(c, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		_ = c.Error(err)
		errorResponse(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
