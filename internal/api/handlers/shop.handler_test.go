package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigia/internal/api/middleware"
	"github.com/platformbuilds/vigia/internal/clients"
	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// setupShop stands up the shop routes behind a live server so checkout's
// self-calls travel over real HTTP, the same way they do in production.
func setupShop(t *testing.T) (*httptest.Server, *simulation.Injector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	injector := simulation.NewInjector()
	log := logger.NewNoop()

	router := gin.New()
	router.Use(middleware.TraceContext())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	self := clients.NewSelfClient(srv.URL, 5*time.Second, log)
	h := NewShopHandler(injector, self, log)
	router.GET("/inventory", h.GetInventory)
	router.POST("/payment", h.PostPayment)
	router.POST("/checkout", h.PostCheckout)

	return srv, injector
}

func TestInventoryAndPaymentSucceed(t *testing.T) {
	srv, _ := setupShop(t)

	resp, err := http.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.TraceIDHeader))

	var inv map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inv))
	assert.Equal(t, "success", inv["status"])
	assert.Equal(t, true, inv["available"])

	resp, err = http.Post(srv.URL+"/payment", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var pay map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pay))
	assert.Equal(t, "success", pay["status"])
	assert.Contains(t, pay["transaction_id"], "txn-")
}

func TestCheckoutSharesTraceAcrossHops(t *testing.T) {
	srv, _ := setupShop(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/checkout", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.TraceIDHeader, "trace-checkout-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The caller's trace id is echoed, not replaced.
	assert.Equal(t, "trace-checkout-1", resp.Header.Get(middleware.TraceIDHeader))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "trace-checkout-1", body["trace_id"])

	// Downstream responses carried the same id; the handler embeds them.
	payment, ok := body["payment"].(map[string]any)
	require.True(t, ok, "payment response missing")
	assert.Equal(t, "trace-checkout-1", payment["trace_id"])

	inventory, ok := body["inventory"].(map[string]any)
	require.True(t, ok, "inventory response missing")
	assert.Equal(t, "trace-checkout-1", inventory["trace_id"])
}

func TestInjectedErrorFailsEndpoint(t *testing.T) {
	srv, injector := setupShop(t)
	injector.SetErrorRate("/payment", 1.0)

	resp, err := http.Post(srv.URL+"/payment", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Simulated failure")
}

func TestCheckoutFailsWhenDownstreamFails(t *testing.T) {
	srv, injector := setupShop(t)
	injector.SetErrorRate("/inventory", 1.0)

	resp, err := http.Post(srv.URL+"/checkout", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Checkout failed due to downstream error")
}

func TestInjectedDelaySlowsEndpoint(t *testing.T) {
	srv, injector := setupShop(t)
	injector.SetDelay("/inventory", 300)

	start := time.Now()
	resp, err := http.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}
