package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/models"
)

// WebSocket message types for the live update protocol
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeUpdate    = "update"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// liveClient is one dashboard tab attached to a session's live feed.
type liveClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *liveClient) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// LiveHub rebroadcasts upstream live envelopes to dashboard WebSockets.
//
// The gateway holds one SSE subscription per session; every browser tab
// of that session attaches here instead of opening its own upstream
// stream.
type LiveHub struct {
	upgrader  websocket.Upgrader
	clients   map[string]map[*liveClient]bool // sessionID -> clients
	clientsMu sync.RWMutex
	logger    *zap.Logger
}

// NewLiveHub creates the hub the live WebSocket endpoint serves from.
func NewLiveHub(logger *zap.Logger) *LiveHub {
	return &LiveHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		clients: make(map[string]map[*liveClient]bool),
		logger:  logger,
	}
}

// HandleWebSocket upgrades the connection and attaches it to the
// caller's session feed. The session ID comes in as a query parameter
// because browsers cannot set headers on WebSocket upgrades.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	ws, err := h.hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &liveClient{conn: ws}
	h.hub.attach(st.ID, client)
	defer func() {
		h.hub.detach(st.ID, client)
		ws.Close()
	}()

	h.logger.Debug("websocket client connected", zap.String("session_id", st.ID))

	client.send(WSMessage{
		Type:      MsgTypeConnected,
		ID:        st.ID,
		Timestamp: time.Now().UnixMilli(),
	})

	// Read loop: only pings are expected from the client; anything else
	// gets an error frame. Returning breaks the connection down.
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket connection error", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			client.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			client.send(WSMessage{
				Type:      MsgTypeError,
				Timestamp: time.Now().UnixMilli(),
				Payload: mustJSON(WSErrorResponse{
					Type:    MsgTypeError,
					Message: "Unknown message type: " + msg.Type,
					Code:    "INVALID_TYPE",
				}),
			})
		}
	}

	h.logger.Debug("websocket client disconnected", zap.String("session_id", st.ID))
	return nil
}

// Broadcast pushes a live envelope to every client of the session.
func (hub *LiveHub) Broadcast(sessionID string, env models.LiveEnvelope) {
	hub.clientsMu.RLock()
	clients := make([]*liveClient, 0, len(hub.clients[sessionID]))
	for client := range hub.clients[sessionID] {
		clients = append(clients, client)
	}
	hub.clientsMu.RUnlock()

	if len(clients) == 0 {
		return
	}

	msg := WSMessage{
		Type:      MsgTypeUpdate,
		ID:        sessionID,
		Payload:   mustJSON(env),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, client := range clients {
		if err := client.send(msg); err != nil {
			hub.logger.Debug("websocket send failed", zap.Error(err))
		}
	}
}

// DropSession disconnects every client attached to a closed session.
func (hub *LiveHub) DropSession(sessionID string) {
	hub.clientsMu.Lock()
	clients := hub.clients[sessionID]
	delete(hub.clients, sessionID)
	hub.clientsMu.Unlock()

	for client := range clients {
		client.conn.Close()
	}
}

// ClientCount returns the number of attached clients across sessions.
func (hub *LiveHub) ClientCount() int {
	hub.clientsMu.RLock()
	defer hub.clientsMu.RUnlock()
	n := 0
	for _, clients := range hub.clients {
		n += len(clients)
	}
	return n
}

func (hub *LiveHub) attach(sessionID string, client *liveClient) {
	hub.clientsMu.Lock()
	defer hub.clientsMu.Unlock()
	if hub.clients[sessionID] == nil {
		hub.clients[sessionID] = make(map[*liveClient]bool)
	}
	hub.clients[sessionID][client] = true
}

func (hub *LiveHub) detach(sessionID string, client *liveClient) {
	hub.clientsMu.Lock()
	defer hub.clientsMu.Unlock()
	delete(hub.clients[sessionID], client)
	if len(hub.clients[sessionID]) == 0 {
		delete(hub.clients, sessionID)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
