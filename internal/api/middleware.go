package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlowRequestThreshold is the latency above which a request is logged at warn level.
const SlowRequestThreshold = 200 * time.Millisecond

const requestIDHeader = "X-Request-ID"

// RequestLogger logs every request with its latency and tags the response with a request id.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		c.Next()

		latency := time.Since(start)
		event := log.Info()
		switch {
		case c.Writer.Status() >= 500:
			event = log.Error()
		case latency > SlowRequestThreshold:
			event = log.Warn().Bool("slow", true)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("http_request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Msg("HTTP request")
	}
}
