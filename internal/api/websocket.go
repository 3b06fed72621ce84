package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/config"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/lumina-bridge/internal/metrics"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// WebSocket message types.
const (
	WSTypeSubscribe = "subscribe"
	WSTypePing      = "ping"
	WSTypePong      = "pong"
	WSTypeState     = "state"
	WSTypeSnapshot  = "snapshot"
	WSTypeError     = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsLookupTimeout bounds the registry and cache reads behind a subscribe.
	wsLookupTimeout = 5 * time.Second
)

// WSMessage is a message sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSStatePayload carries one device's state.
type WSStatePayload struct {
	DeviceID string      `json:"device_id"`
	State    state.State `json:"state"`
	Source   string      `json:"source,omitempty"`
}

// Hub tracks connected clients and fans state changes out to the clients
// that own the changed device.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected stream. owned is the owner's device set,
// captured at connect and refreshed on subscribe.
type WSClient struct {
	hub   *Hub
	srv   *Server
	conn  *websocket.Conn
	send  chan []byte
	owner string

	mu    sync.RWMutex
	owned device.IDSet
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Clients authenticate with a bearer credential, not cookies.
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.AddWebSocketClients(1)
	h.logger.Debug("websocket client connected", "owner", client.owner, "clients", n)
}

// Unregister removes a client from the hub. Only the caller that removes
// the client closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		metrics.AddWebSocketClients(-1)
	}
	h.logger.Debug("websocket client disconnected", "owner", client.owner, "clients", n)
}

// PublishChange sends an applied state change to every client owning the
// device. It never blocks, so it can be registered with Cache.OnChange.
func (h *Hub) PublishChange(ch state.Change) {
	h.mu.RLock()
	recipients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		if client.owns(ch.DeviceID) {
			recipients = append(recipients, client)
		}
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeState,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   WSStatePayload{DeviceID: ch.DeviceID, State: ch.State, Source: string(ch.Source)},
	})
	if err != nil {
		h.logger.Error("failed to marshal state change", "error", err)
		return
	}
	for _, client := range recipients {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
		metrics.AddWebSocketClients(-1)
	}
}

// handleWebSocket upgrades an authenticated request to a state stream.
// The owner's devices are resolved before the upgrade so a registry
// failure is still reported as a plain HTTP error.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	owned, err := s.devices.OwnedIDs(r.Context(), owner)
	if err != nil {
		s.logger.Error("resolving devices for websocket", "owner", owner, "error", err)
		writeInternalError(w, "failed to resolve devices")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:   s.hub,
		srv:   s,
		conn:  conn,
		send:  make(chan []byte, wsSendBufferSize),
		owner: owner,
		owned: owned,
	}
	s.hub.Register(client)

	go client.writePump(s.cfg.WebSocket)
	go client.readPump(s.cfg.WebSocket)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypePing:
		c.sendMessage(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe refreshes the owned set and replies with a snapshot of
// every owned device's state.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), wsLookupTimeout)
	defer cancel()

	owned, err := c.srv.devices.OwnedIDs(ctx, c.owner)
	if err != nil {
		c.hub.logger.Warn("websocket subscribe: resolving devices", "owner", c.owner, "error", err)
		c.sendError(msg.ID, "failed to resolve devices")
		return
	}
	c.mu.Lock()
	c.owned = owned
	c.mu.Unlock()

	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	states, err := c.srv.states.Get(ctx, ids)
	if err != nil {
		c.hub.logger.Warn("websocket subscribe: reading state", "owner", c.owner, "error", err)
		c.sendError(msg.ID, "failed to read state")
		return
	}

	snapshot := make([]WSStatePayload, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, WSStatePayload{DeviceID: id, State: states[id]})
	}
	c.sendMessage(msg.ID, WSTypeSnapshot, snapshot)
}

func (c *WSClient) owns(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owned.Has(id)
}

// trySend queues data without blocking. A full buffer drops the message;
// a closed channel (client gone mid-publish) is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendMessage(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendMessage(id, WSTypeError, map[string]string{"message": message})
}
