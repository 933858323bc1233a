package beacon

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades listener connections and runs their sessions
type WebSocketHandler struct {
	manager  *ConnectionManager
	reports  ReportRecorder
	clock    clockwork.Clock
	config   ConnectionConfig
	metrics  MetricsCollector
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(manager *ConnectionManager, reports ReportRecorder, clock clockwork.Clock, config ConnectionConfig, metrics MetricsCollector) *WebSocketHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &WebSocketHandler{
		manager: manager,
		reports: reports,
		clock:   clock,
		config:  config,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

// HandleConnection upgrades the request and starts the session pumps
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
		return
	}

	connection := &Connection{
		id:      uuid.New().String(),
		label:   r.RemoteAddr,
		conn:    conn,
		send:    make(chan []byte, h.config.SendBufferSize),
		manager: h.manager,
		reports: h.reports,
		clock:   h.clock,
		config:  h.config,
		metrics: h.metrics,
	}

	go connection.writePump()

	// The current state goes out before anything else so new clients don't wait for the next tick
	if err := h.manager.Register(connection); err != nil {
		return
	}
	connection.state.CompareAndSwap(int32(SessionConnected), int32(SessionActive))

	go connection.readPump()
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.manager.GetConnectionStats()); err != nil {
		log.Debug().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.HandleConnection)
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
