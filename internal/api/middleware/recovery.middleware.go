package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/pkg/logger"
)

// PanicRecovery converts handler panics into a 500 response and attaches the
// panic with its stack to the gin error list. It must sit inside the
// telemetry collector in the chain: the failure then reaches the store as a
// regular error record instead of vanishing with the goroutine.
func PanicRecovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%T: %v\n%s", r, r, debug.Stack())
				_ = c.Error(err)

				log.Error("handler panic recovered",
					"path", c.Request.URL.Path,
					"trace_id", TraceID(c),
					"panic", fmt.Sprintf("%v", r),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
