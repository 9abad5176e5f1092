package httpx

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"log-inspection/internal/worker"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Request-ID"

const maxTraceIDLen = 128

// traceMiddleware takes the caller's trace id or issues one, echoes it back
// and stores it on the request context for the executor to inherit.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceHeader)
		if id == "" || len(id) > maxTraceIDLen {
			id = uuid.NewString()
		}
		c.Header(TraceHeader, id)
		c.Request = c.Request.WithContext(worker.WithTraceID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		traceID, _ := worker.TraceIDFromContext(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"dur", time.Since(start),
			"trace_id", traceID,
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		if c.Writer.Status() >= 500 {
			s.log.Error("http request", attrs...)
			return
		}
		s.log.Debug("http request", attrs...)
	}
}
