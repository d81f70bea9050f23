package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platformbuilds/vigia/internal/api/middleware"
	"github.com/platformbuilds/vigia/internal/clients"
	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// ShopHandler implements the built-in monitored endpoints. They exist to
// generate real traced traffic through the pipeline: checkout fans out to
// payment and inventory over HTTP, so a failure injected downstream
// propagates upstream exactly like a production cascade.
type ShopHandler struct {
	injector *simulation.Injector
	self     *clients.SelfClient
	logger   logger.Logger
}

func NewShopHandler(injector *simulation.Injector, self *clients.SelfClient, log logger.Logger) *ShopHandler {
	return &ShopHandler{
		injector: injector,
		self:     self,
		logger:   log,
	}
}

// GetInventory handles GET /inventory.
func (h *ShopHandler) GetInventory(c *gin.Context) {
	if err := h.injector.Inject(c.Request.Context(), "/inventory"); err != nil {
		h.fail(c, err)
		return
	}

	// Simulated stock lookup.
	time.Sleep(50 * time.Millisecond)

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"available": true,
		"quantity":  42,
		"trace_id":  middleware.TraceID(c),
	})
}

// PostPayment handles POST /payment.
func (h *ShopHandler) PostPayment(c *gin.Context) {
	if err := h.injector.Inject(c.Request.Context(), "/payment"); err != nil {
		h.fail(c, err)
		return
	}

	// Simulated gateway round trip.
	time.Sleep(100 * time.Millisecond)

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"transaction_id": "txn-" + uuid.New().String()[:8],
		"trace_id":       middleware.TraceID(c),
	})
}

// PostCheckout handles POST /checkout. It calls payment then inventory over
// HTTP with the trace id forwarded, so all three hops share one trace. Any
// downstream failure fails the checkout.
func (h *ShopHandler) PostCheckout(c *gin.Context) {
	if err := h.injector.Inject(c.Request.Context(), "/checkout"); err != nil {
		h.fail(c, err)
		return
	}

	traceID := middleware.TraceID(c)

	payment, err := h.self.PostPayment(c.Request.Context(), traceID)
	if err != nil {
		h.failDownstream(c, err)
		return
	}

	inventory, err := h.self.GetInventory(c.Request.Context(), traceID)
	if err != nil {
		h.failDownstream(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Checkout completed",
		"payment":   payment,
		"inventory": inventory,
		"trace_id":  traceID,
	})
}

// fail answers a handler-level failure (usually injected) with a 500 whose
// message reaches the telemetry record via the gin error list.
func (h *ShopHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":    err.Error(),
		"trace_id": middleware.TraceID(c),
	})
}

func (h *ShopHandler) failDownstream(c *gin.Context, err error) {
	h.fail(c, fmt.Errorf("Checkout failed due to downstream error: %v", err))
}
