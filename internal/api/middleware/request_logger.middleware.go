package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/pkg/logger"
)

// RequestLogger logs every HTTP request with its trace id, leveled by
// status code.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		traceID := ""
		if param.Keys != nil {
			if tid, exists := param.Keys[traceIDKey]; exists {
				if s, ok := tid.(string); ok {
					traceID = s
				}
			}
		}

		fields := []interface{}{
			"method", param.Method,
			"path", param.Path,
			"status", param.StatusCode,
			"latency", param.Latency,
			"client_ip", param.ClientIP,
			"trace_id", traceID,
			"user_agent", param.Request.UserAgent(),
		}
		if param.ErrorMessage != "" {
			fields = append(fields, "error", param.ErrorMessage)
		}

		switch {
		case param.StatusCode >= 500:
			log.Error("HTTP Request", fields...)
		case param.StatusCode >= 400:
			log.Warn("HTTP Request", fields...)
		default:
			log.Info("HTTP Request", fields...)
		}

		return ""
	})
}
