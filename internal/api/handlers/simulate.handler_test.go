package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/pkg/logger"
)

func setupSimulateRouter() (*gin.Engine, *simulation.Injector) {
	gin.SetMode(gin.TestMode)
	injector := simulation.NewInjector()
	h := NewSimulateHandler(injector, logger.NewNoop())

	r := gin.New()
	sim := r.Group("/simulate")
	{
		sim.POST("/delay", h.SetDelay)
		sim.POST("/error", h.SetErrorRate)
		sim.POST("/clear", h.Clear)
		sim.GET("/status", h.Status)
	}
	return r, injector
}

func TestSimulateDelayConfiguresInjector(t *testing.T) {
	router, injector := setupSimulateRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulate/delay?endpoint=/payment&duration=2000", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cfg := injector.Config()
	require.Contains(t, cfg, "/payment")
	assert.Equal(t, 2000, cfg["/payment"].DelayMS)
}

func TestSimulateErrorConfiguresInjector(t *testing.T) {
	router, injector := setupSimulateRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulate/error?endpoint=/inventory&rate=0.8", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cfg := injector.Config()
	require.Contains(t, cfg, "/inventory")
	assert.InDelta(t, 0.8, cfg["/inventory"].ErrorRate, 0.001)
}

func TestSimulateValidation(t *testing.T) {
	router, _ := setupSimulateRouter()

	tests := []struct {
		name string
		path string
	}{
		{"delay without endpoint", "/simulate/delay?duration=1000"},
		{"delay with bad duration", "/simulate/delay?endpoint=/payment&duration=soon"},
		{"error without endpoint", "/simulate/error?rate=0.5"},
		{"error with bad rate", "/simulate/error?endpoint=/payment&rate=often"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSimulateClearOneAndAll(t *testing.T) {
	router, injector := setupSimulateRouter()
	injector.SetDelay("/payment", 1000)
	injector.SetErrorRate("/inventory", 0.5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulate/clear?endpoint=/payment", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cfg := injector.Config()
	assert.NotContains(t, cfg, "/payment")
	assert.Contains(t, cfg, "/inventory")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/simulate/clear", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, injector.Config())
}

func TestSimulateStatusReportsTable(t *testing.T) {
	router, injector := setupSimulateRouter()
	injector.SetDelay("/payment", 3000)
	injector.SetErrorRate("/payment", 0.2)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/simulate/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Simulations map[string]simulation.Settings `json:"simulations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.Simulations, "/payment")
	assert.Equal(t, 3000, resp.Simulations["/payment"].DelayMS)
	assert.InDelta(t, 0.2, resp.Simulations["/payment"].ErrorRate, 0.001)
}
