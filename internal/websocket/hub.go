package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/auth"
	"github.com/randybritsch/c4-mcp-app-sub000/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default ping period when no heartbeat interval is configured.
	defaultPingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Outbound frames buffered per client before sends are dropped.
	sendBufferSize = 256
)

// Close reasons sent with code 1008 when admission fails.
const (
	CloseReasonMaxConnections = "Maximum connections reached"
	CloseReasonAuthRequired   = "Authentication required"
	CloseReasonInvalidToken   = "Invalid token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TokenVerifier checks the token a client presents in the query string.
type TokenVerifier interface {
	ValidateToken(token string) (*auth.DeviceClaims, error)
}

// CommandProcessor runs commands for a connection. *usecase.Resolver
// implements it.
type CommandProcessor interface {
	ProcessUtterance(ctx context.Context, cmd usecase.Command, audio entities.AudioPayload)
	ProcessText(ctx context.Context, cmd usecase.Command, transcript string)
	ProcessChoice(ctx context.Context, cmd usecase.Command, index int)
	ProcessRemote(ctx context.Context, cmd usecase.Command, button string)
}

// Metrics receives connection observations. A nil Metrics is allowed.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionRejected(reason string)
	Envelope(direction, messageType string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()         {}
func (nopMetrics) ConnectionClosed()         {}
func (nopMetrics) ConnectionRejected(string) {}
func (nopMetrics) Envelope(string, string)   {}

// Config tunes connection admission and liveness.
type Config struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
	AllowTextCommands bool
}

// Hub maintains the set of active clients and enforces the connection ceiling.
type Hub struct {
	// Registered clients, keyed by correlation id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map and the admission count
	mu sync.RWMutex

	// Connections admitted and not yet unregistered.
	admitted int

	verifier TokenVerifier
	commands CommandProcessor
	metrics  Metrics
	config   Config

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(verifier TokenVerifier, commands CommandProcessor, metrics Metrics, config Config, logger *zap.Logger) *Hub {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultPingPeriod
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		verifier:   verifier,
		commands:   commands,
		metrics:    metrics,
		config:     config,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.correlationID] = client
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered",
				zap.String("correlationID", client.correlationID),
				zap.String("deviceID", client.session.DeviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.correlationID]; ok {
				delete(h.clients, client.correlationID)
				h.admitted--
				client.closeSend()
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("correlationID", client.correlationID),
				zap.String("deviceID", client.session.DeviceID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.closeSend()
				h.metrics.ConnectionClosed()
			}
			h.admitted = 0
			h.mu.Unlock()
			return
		}
	}
}

// ActiveConnections returns the number of registered clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.config.MaxConnections > 0 && h.admitted >= h.config.MaxConnections {
		return false
	}
	h.admitted++
	return true
}

func (h *Hub) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.admitted--
}

// HandleWebSocket upgrades the request and admits the connection. Rejections
// happen after the upgrade so the client sees a 1008 close with a reason:
// the connection ceiling first, then the missing token, then a bad token.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	correlationID := uuid.NewString()
	reject := func(reason, metric string) error {
		h.metrics.ConnectionRejected(metric)
		h.logger.Warn("WebSocket connection rejected",
			zap.String("correlationID", correlationID),
			zap.String("reason", reason))
		closeWith(conn, websocket.ClosePolicyViolation, reason)
		return nil
	}

	if !h.reserve() {
		return reject(CloseReasonMaxConnections, "max_connections")
	}

	token := c.QueryParam("token")
	if token == "" {
		h.release()
		return reject(CloseReasonAuthRequired, "missing_token")
	}

	claims, err := h.verifier.ValidateToken(token)
	if err != nil {
		h.release()
		return reject(CloseReasonInvalidToken, "invalid_token")
	}

	client := newClient(h, conn, correlationID, entities.NewSession(claims.DeviceID))
	select {
	case h.register <- client:
	case <-h.done:
		closeWith(conn, websocket.CloseGoingAway, "Server shutting down")
		return nil
	}

	h.logger.Info("WebSocket connection established",
		zap.String("correlationID", correlationID),
		zap.String("deviceID", claims.DeviceID),
		zap.String("deviceName", claims.DeviceName))

	client.sendMessage(CreateConnectedMessage(correlationID))

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}
