package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// ingestSkipPrefixes lists surfaces whose requests never become telemetry
// records: the analysis read API must not feed the pipeline it reports on,
// and the ops endpoints are noise. Simulate control calls ARE recorded; the
// analyzer filters them at read time instead.
var ingestSkipPrefixes = []string{
	"/aiops/",
	"/metrics",
	"/swagger/",
	"/api/",
	"/favicon",
}

func skipIngest(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range ingestSkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TelemetryCollector records one TelemetryRecord per completed request. It
// runs after TraceContext so the record lands under the request's trace id.
// Insert failures are logged, never surfaced to the client.
func TelemetryCollector(store storage.Store, serviceName string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipIngest(path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		record := &models.TelemetryRecord{
			ServiceName: serviceName,
			Endpoint:    path,
			Method:      c.Request.Method,
			StatusCode:  status,
			LatencyMS:   float64(time.Since(start).Microseconds()) / 1000.0,
			TraceID:     TraceID(c),
			Timestamp:   time.Now().UTC(),
		}
		if status >= 500 && len(c.Errors) > 0 {
			record.ErrorMessage = c.Errors.Last().Err.Error()
		}

		// Detached from the request context: a client that hangs up mid-flight
		// still leaves a record behind.
		if err := store.Insert(context.Background(), record); err != nil {
			log.Error("telemetry insert failed",
				"endpoint", path,
				"trace_id", record.TraceID,
				"error", err,
			)
			return
		}
		monitoring.RecordTelemetryRecord(path, status)
	}
}
