package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// SimulateHandler is the control surface for failure injection. Operators
// use it to stage latency and error scenarios against the shop endpoints.
type SimulateHandler struct {
	injector *simulation.Injector
	logger   logger.Logger
}

func NewSimulateHandler(injector *simulation.Injector, log logger.Logger) *SimulateHandler {
	return &SimulateHandler{injector: injector, logger: log}
}

// SetDelay handles POST /simulate/delay?endpoint=/payment&duration=3000.
func (h *SimulateHandler) SetDelay(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint parameter required"})
		return
	}

	duration, err := strconv.Atoi(c.DefaultQuery("duration", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be an integer"})
		return
	}

	h.injector.SetDelay(endpoint, duration)
	h.logger.Info("simulation configured", "endpoint", endpoint, "delay_ms", duration)

	c.JSON(http.StatusOK, gin.H{
		"status":   "configured",
		"endpoint": endpoint,
		"delay_ms": duration,
	})
}

// SetErrorRate handles POST /simulate/error?endpoint=/payment&rate=0.8.
func (h *SimulateHandler) SetErrorRate(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint parameter required"})
		return
	}

	rate, err := strconv.ParseFloat(c.DefaultQuery("rate", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate must be a number"})
		return
	}

	h.injector.SetErrorRate(endpoint, rate)
	h.logger.Info("simulation configured", "endpoint", endpoint, "error_rate", rate)

	c.JSON(http.StatusOK, gin.H{
		"status":     "configured",
		"endpoint":   endpoint,
		"error_rate": rate,
	})
}

// Clear handles POST /simulate/clear[?endpoint=/payment]. Without an
// endpoint it clears everything.
func (h *SimulateHandler) Clear(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint != "" {
		h.injector.ClearEndpoint(endpoint)
		h.logger.Info("simulation cleared", "endpoint", endpoint)
		c.JSON(http.StatusOK, gin.H{
			"status":   "cleared",
			"endpoint": endpoint,
		})
		return
	}

	h.injector.ClearAll()
	h.logger.Info("all simulations cleared")
	c.JSON(http.StatusOK, gin.H{
		"status":  "cleared",
		"message": "All simulations cleared",
	})
}

// Status handles GET /simulate/status.
func (h *SimulateHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"simulations": h.injector.Config(),
	})
}
