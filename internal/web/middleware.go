package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
)

// observe logs each request and records it in the HTTP metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		if m := s.opts.Metrics; m != nil {
			m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		}

		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			log.DurationMsKey, elapsed.Milliseconds(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Warn("request failed", fields...)
		default:
			s.logger.Debug("request served", fields...)
		}
	}
}

// recovery converts handler panics into 500 responses.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := errors.NewPanicError(c.FullPath(), r)
				s.logger.Error("handler panic", err, "route", c.FullPath())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
