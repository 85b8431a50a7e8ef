package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/hypertext"
	"github.com/retroview/retroview/internal/session"
)

// handleNewWindow creates a fresh viewer session and serves a page
// redirecting the client into it.
func (s *Server) handleNewWindow(c *gin.Context) {
	id, err := s.manager.CreateSession()
	if err != nil {
		if errors.Is(err, session.ErrServerFull) {
			c.String(http.StatusServiceUnavailable, "ERROR: Maximum number of concurrent sessions exceeded")
			return
		}
		s.log.Error("could not create session", zap.Error(err))
		c.String(http.StatusInternalServerError, "ERROR: Internal error")
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := hypertext.WriteNewWindow(c.Writer, hypertext.NewWindowData{SessionID: id}); err != nil {
		s.log.Error("could not write new window document", zap.Error(err))
	}
}

// handleSession resolves the leading numeric path segment and defers
// the rest of the grammar to the session engine. The handler parks
// until the engine (or one of its registered jobs) completes the
// response; every protocol path answers in bounded time.
func (s *Server) handleSession(c *gin.Context) {
	id, ok := sessionIDFromPath(c.Request.URL.Path)
	if !ok {
		c.String(http.StatusBadRequest, "ERROR: Invalid request URI or method")
		return
	}

	req := session.NewRequest(c.Request.Method, c.Request.URL.Path, c.Writer)
	s.manager.Dispatch(id, req)
	<-req.Done()
}

// sessionIDFromPath extracts the numeric first segment of "/123/...".
func sessionIDFromPath(path string) (uint64, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segment, _, _ := strings.Cut(trimmed, "/")
	if segment == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(segment, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
