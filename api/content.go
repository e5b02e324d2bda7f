package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HandleSignedContent handles GET /content/*key for signed links issued by
// the file content store.
func (s *Server) HandleSignedContent(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	if err := s.verifier.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
		s.handleError(c, err)
		return
	}

	body, err := s.store.Get(c.Request.Context(), key)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}
