package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDHeader carries the trace id across service hops. Checkout forwards
// it on self-calls so all hops of one user request share an id.
const TraceIDHeader = "X-Trace-ID"

// traceIDKey is the gin context key the trace id is stashed under.
const traceIDKey = "trace_id"

// TraceContext adopts the caller's trace id or mints a fresh one, and echoes
// it on the response so clients can correlate.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(traceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// TraceID returns the request's trace id, empty if TraceContext did not run.
func TraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}
