package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	defaultTopN  = 10
)

// ListNewsResponse is the body of every article listing.
type ListNewsResponse struct {
	Articles []article.Article `json:"articles"`
	Count    int               `json:"count"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ContentResponse is the body of GET /news/:id/content.
type ContentResponse struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

// ContentURLResponse is the body of GET /news/:id/content-url.
type ContentURLResponse struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	ExpiresIn int64     `json:"expires_in"` // seconds
}

// HandleListNews handles GET /news.
func (s *Server) HandleListNews(c *gin.Context) {
	s.listArticles(c, article.Filter{})
}

// HandleSearchNews handles GET /news/search. An empty query lists
// everything.
func (s *Server) HandleSearchNews(c *gin.Context) {
	filter := article.Filter{}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.Search = &q
	}
	s.listArticles(c, filter)
}

// HandleNewsBySource handles GET /news/source/:source.
func (s *Server) HandleNewsBySource(c *gin.Context) {
	source := c.Param("source")
	s.listArticles(c, article.Filter{Source: &source})
}

// HandleGeopoliticalNews handles GET /news/geopolitical.
func (s *Server) HandleGeopoliticalNews(c *gin.Context) {
	s.listArticles(c, article.Filter{Geopolitical: true})
}

// HandleNewsByCountry handles GET /news/country/:country.
func (s *Server) HandleNewsByCountry(c *gin.Context) {
	country := c.Param("country")
	s.listArticles(c, article.Filter{Country: &country})
}

func (s *Server) listArticles(c *gin.Context, filter article.Filter) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	articles, err := s.repo.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if articles == nil {
		articles = []article.Article{}
	}

	c.JSON(http.StatusOK, ListNewsResponse{
		Articles: articles,
		Count:    len(articles),
		Limit:    limit,
		Offset:   offset,
	})
}

// parsePagination reads limit and offset, writing a 400 on bad input.
func parsePagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errorResponse(c, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return 0, 0, false
		}
		limit = min(n, maxLimit)
	}

	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorResponse(c, http.StatusBadRequest, "invalid_parameter", "Invalid offset parameter")
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}

// HandleStatistics handles GET /news/statistics.
func (s *Server) HandleStatistics(c *gin.Context) {
	top := defaultTopN
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errorResponse(c, http.StatusBadRequest, "invalid_parameter", "Invalid top parameter")
			return
		}
		top = n
	}

	stats, err := s.repo.Stats(c.Request.Context(), top)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// HandleGetArticle handles GET /news/:id.
func (s *Server) HandleGetArticle(c *gin.Context) {
	a, ok := s.lookupArticle(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a)
}

// HandleGetContent handles GET /news/:id/content. Legacy rows are served
// from their inline body.
func (s *Server) HandleGetContent(c *gin.Context) {
	a, ok := s.lookupArticle(c)
	if !ok {
		return
	}

	if a.ContentKey == nil {
		if a.Content == "" {
			errorResponse(c, http.StatusNotFound, "no_content", "Article has no stored content")
			return
		}
		c.JSON(http.StatusOK, ContentResponse{ID: a.ID, Content: a.Content})
		return
	}

	body, err := s.store.Get(c.Request.Context(), *a.ContentKey)
	if err != nil {
		s.log.Error("Failed to read article content",
			logger.String("article_id", a.ID.String()),
			logger.String("content_key", *a.ContentKey),
			logger.Err(err),
		)
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ContentResponse{ID: a.ID, Content: body})
}

// HandleGetContentURL handles GET /news/:id/content-url. The expiry
// parameter is a Go duration or a number of seconds.
func (s *Server) HandleGetContentURL(c *gin.Context) {
	expiry := content.DefaultURLExpiry
	if v := c.Query("expiry"); v != "" {
		d, err := parseExpiry(v)
		if err != nil || d <= 0 || d > content.MaxURLExpiry {
			errorResponse(c, http.StatusBadRequest, "invalid_parameter",
				"Invalid expiry parameter: must be positive and at most 7 days")
			return
		}
		expiry = d
	}

	a, ok := s.lookupArticle(c)
	if !ok {
		return
	}
	if a.ContentKey == nil {
		errorResponse(c, http.StatusNotFound, "no_content", "Article content has not been offloaded")
		return
	}

	signed, err := s.store.SignedURL(c.Request.Context(), *a.ContentKey, expiry)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ContentURLResponse{
		ID:        a.ID,
		URL:       signed,
		ExpiresIn: int64(expiry / time.Second),
	})
}

func parseExpiry(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// lookupArticle parses :id and loads the article, writing the error
// response itself when it fails.
func (s *Server) lookupArticle(c *gin.Context) (*article.Article, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid_id", "Invalid article ID: "+err.Error())
		return nil, false
	}

	a, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return nil, false
	}

	return a, true
}
