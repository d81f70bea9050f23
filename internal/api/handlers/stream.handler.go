package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/rca"
	"github.com/platformbuilds/vigia/pkg/logger"
)

// StreamHandler pushes the active incident list to WebSocket clients so
// dashboards track outages without polling.
type StreamHandler struct {
	upgrader websocket.Upgrader
	rca      rca.Engine
	cfg      config.WebSocketConfig
	logger   logger.Logger

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func NewStreamHandler(rcaEngine rca.Engine, cfg config.WebSocketConfig, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// TODO: tighten in prod (check Origin against the CORS allow list)
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rca:     rcaEngine,
		cfg:     cfg,
		logger:  log,
		clients: make(map[string]*websocket.Conn),
	}
}

// ClientCount reports connected stream clients.
func (h *StreamHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleIncidentStream is the WebSocket endpoint at GET /aiops/stream. Each
// connection gets the incident list on a fixed cadence plus heartbeats so
// idle proxies don't drop it.
func (h *StreamHandler) HandleIncidentStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := generateClientID()
	h.mu.Lock()
	h.clients[clientID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
	}()

	h.logger.Info("stream client connected", "client_id", clientID)

	pushEvery := time.Duration(h.cfg.PushIntervalSeconds) * time.Second
	if pushEvery <= 0 {
		pushEvery = 5 * time.Second
	}
	pingEvery := time.Duration(h.cfg.PingIntervalSeconds) * time.Second
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}

	ticker := time.NewTicker(pushEvery)
	defer ticker.Stop()
	heartbeat := time.NewTicker(pingEvery)
	defer heartbeat.Stop()

	// Send the current state immediately so clients don't wait one interval.
	if err := h.pushIncidents(conn); err != nil {
		h.logger.Error("stream write failed", "client_id", clientID, "error", err)
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := h.pushIncidents(conn); err != nil {
				h.logger.Error("stream write failed", "client_id", clientID, "error", err)
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = conn.WriteJSON(map[string]any{
				"type": "heartbeat",
				"data": map[string]any{"ts": time.Now().UnixMilli()},
			})

		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *StreamHandler) pushIncidents(conn *websocket.Conn) error {
	incidents := h.rca.ActiveIncidents()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(map[string]any{
		"type": "incidents",
		"data": map[string]any{
			"active_incidents": incidents,
			"incident_count":   len(incidents),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// generateClientID returns a random 16-byte hex id.
func generateClientID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
