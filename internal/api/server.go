// Package api assembles the HTTP surface: the aiops read API, the failure
// simulation controls, the demo shop endpoints that generate traffic, and
// the operational endpoints (health, metrics, docs).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/platformbuilds/vigia/internal/analyzer"
	"github.com/platformbuilds/vigia/internal/api/handlers"
	"github.com/platformbuilds/vigia/internal/api/middleware"
	"github.com/platformbuilds/vigia/internal/clients"
	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/monitoring"
	"github.com/platformbuilds/vigia/internal/rca"
	"github.com/platformbuilds/vigia/internal/scheduler"
	"github.com/platformbuilds/vigia/internal/search"
	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/pkg/logger"
)

type Server struct {
	config    *config.Config
	runtime   *config.Runtime
	logger    logger.Logger
	store     storage.Store
	analyzer  analyzer.Engine
	rca       rca.Engine
	scheduler *scheduler.Scheduler
	injector  *simulation.Injector
	search    *search.IncidentIndex
	self      *clients.SelfClient

	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	runtime *config.Runtime,
	log logger.Logger,
	store storage.Store,
	analyzerEngine analyzer.Engine,
	rcaEngine rca.Engine,
	sched *scheduler.Scheduler,
	injector *simulation.Injector,
	searchIndex *search.IncidentIndex,
	selfClient *clients.SelfClient,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:    cfg,
		runtime:   runtime,
		logger:    log,
		store:     store,
		analyzer:  analyzerEngine,
		rca:       rcaEngine,
		scheduler: sched,
		injector:  injector,
		search:    searchIndex,
		self:      selfClient,
		router:    gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	// Trace context first so every later stage sees the request's trace id.
	s.router.Use(middleware.TraceContext())

	// CORS for dashboard access.
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))

	// Request logging.
	s.router.Use(middleware.RequestLogger(s.logger))

	// Prometheus request metrics.
	if s.config.Monitoring.Enabled {
		s.router.Use(monitoring.HTTPMetricsMiddleware())
	}

	// Self-instrumentation: one telemetry record per completed request.
	s.router.Use(middleware.TelemetryCollector(s.store, s.config.ServiceName, s.logger))

	// Panic recovery sits inside the collector so a panicking handler still
	// produces an error record before the 500 goes out.
	s.router.Use(middleware.PanicRecovery(s.logger))

	// OpenAPI document endpoints.
	s.router.StaticFile("/api/openapi.yaml", "api/openapi.yaml")
	s.router.GET("/api/openapi.json", handlers.GetOpenAPISpec)

	// Swagger UI via gin-swagger, rendering the external openapi.yaml.
	// Visit /swagger/index.html
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/openapi.yaml")))

	// Prometheus metrics endpoint.
	if s.config.Monitoring.Enabled && s.config.Monitoring.PrometheusEnabled {
		monitoring.SetupPrometheusMetrics(s.router)
	}
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.store, s.config.ServiceName, s.logger)
	s.router.GET("/health", healthHandler.HealthCheck)

	// Root redirect to Swagger UI for convenience.
	s.router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/swagger/index.html")
	})

	// Analysis read API.
	aiopsHandler := handlers.NewAIOpsHandler(s.store, s.analyzer, s.rca, s.scheduler, s.search, s.runtime, s.logger)
	aiops := s.router.Group("/aiops")
	aiops.GET("/metrics", aiopsHandler.GetMetrics)
	aiops.GET("/incidents", aiopsHandler.GetIncidents)
	aiops.GET("/incidents/search", aiopsHandler.SearchIncidents)
	aiops.GET("/incidents/:id", aiopsHandler.GetIncident)
	aiops.POST("/incidents/:id/resolve", aiopsHandler.ResolveIncident)
	aiops.POST("/analyze", aiopsHandler.TriggerAnalysis)

	// Incident stream for dashboards.
	if s.config.WebSocket.Enabled {
		streamHandler := handlers.NewStreamHandler(s.rca, s.config.WebSocket, s.logger)
		aiops.GET("/stream", streamHandler.HandleIncidentStream)
	}

	// Failure injection controls.
	simulateHandler := handlers.NewSimulateHandler(s.injector, s.logger)
	simulate := s.router.Group("/simulate")
	simulate.POST("/delay", simulateHandler.SetDelay)
	simulate.POST("/error", simulateHandler.SetErrorRate)
	simulate.POST("/clear", simulateHandler.Clear)
	simulate.GET("/status", simulateHandler.Status)

	// Demo shop endpoints, the monitored traffic source.
	if s.config.Demo.Enabled {
		shopHandler := handlers.NewShopHandler(s.injector, s.self, s.logger)
		s.router.GET("/inventory", shopHandler.GetInventory)
		s.router.POST("/payment", shopHandler.PostPayment)
		s.router.POST("/checkout", shopHandler.PostCheckout)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("VIGIA REST API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down VIGIA gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying Gin engine so tests (or embedders) can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
