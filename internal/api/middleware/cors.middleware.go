package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/internal/config"
)

// Header values applied when the CORS config leaves a field empty.
const (
	defaultAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS, PATCH"
	defaultAllowHeaders  = "Origin, Content-Type, Accept, X-Trace-ID"
	defaultExposeHeaders = "X-Trace-ID"
	defaultMaxAgeSeconds = 43200
)

// CORSMiddleware handles Cross-Origin Resource Sharing for dashboard access.
func CORSMiddleware(corsConfig config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if isOriginAllowed(origin, corsConfig.AllowedOrigins) {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", joinOrDefault(corsConfig.AllowedMethods, defaultAllowMethods))
		c.Header("Access-Control-Allow-Headers", joinOrDefault(corsConfig.AllowedHeaders, defaultAllowHeaders))
		c.Header("Access-Control-Expose-Headers", joinOrDefault(corsConfig.ExposedHeaders, defaultExposeHeaders))

		if corsConfig.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		maxAge := corsConfig.MaxAge
		if maxAge <= 0 {
			maxAge = defaultMaxAgeSeconds
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		// Preflight requests stop here.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func joinOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

// isOriginAllowed checks the origin against the configured allow list. An
// empty list admits only local development hosts. Entries of the form
// "*.example.io" match any subdomain.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	}

	for _, allowed := range allowedOrigins {
		switch {
		case allowed == "*":
			return true
		case allowed == origin:
			return true
		case strings.HasPrefix(allowed, "*."):
			if strings.HasSuffix(origin, strings.TrimPrefix(allowed, "*.")) {
				return true
			}
		}
	}

	return false
}
