package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SecretKeyHeader carries the API secret key.
const SecretKeyHeader = "X-Secret-Key"

// requestLogger logs one event per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		}

		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// recovery converts a handler panic into an INTERNAL_ERROR envelope.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		s.log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
		abortError(c, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred",
			s.details(nil, fmt.Errorf("panic: %v", recovered)))
	})
}

// requireSecret gates a route on the configured secret key. With no key
// configured every request passes.
func (s *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.SecretKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader(SecretKeyHeader)
		if key == "" {
			if scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && scheme == "Bearer" {
				key = strings.TrimSpace(token)
			}
		}

		if key == "" {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "Missing secret key", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.SecretKey)) != 1 {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid secret key", nil)
			return
		}

		c.Next()
	}
}
