package infra

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHub manages WebSocket connections and room-based message delivery.
// Rooms are player-scoped ("player:{id}") or world-scoped ("world:{id}");
// the calendar day-change broadcast rides the world room.
type WSHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*WSConn // room -> connID -> conn
	logger *slog.Logger
}

// WSConn represents a WebSocket connection (abstracted for testability).
type WSConn struct {
	ID       string
	PlayerID string
	Send     chan []byte
}

// WSMessage is the payload sent over WebSocket.
type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		rooms:  make(map[string]map[string]*WSConn),
		logger: logger,
	}
}

// Join adds a connection to a room.
func (h *WSHub) Join(room string, conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSConn)
	}
	h.rooms[room][conn.ID] = conn
}

// Leave removes a connection from a room.
func (h *WSHub) Leave(room string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish sends a message to all connections in a room.
func (h *WSHub) Publish(room string, event string, data interface{}) {
	msg := WSMessage{Event: event, Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}

	for _, conn := range conns {
		select {
		case conn.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "connID", conn.ID, "room", room)
		}
	}
}

// PublishToPlayer is a convenience method to publish to a player-scoped room.
func (h *WSHub) PublishToPlayer(playerID string, event string, data interface{}) {
	h.Publish("player:"+playerID, event, data)
}

// PublishToWorld publishes to a world-scoped room.
func (h *WSHub) PublishToWorld(worldID string, event string, data interface{}) {
	h.Publish("world:"+worldID, event, data)
}

// ConnectionCount returns the total number of active connections.
func (h *WSHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsSendBuffer   = 64
)

// ServeWS upgrades an HTTP request to a websocket connection, joins the
// player and world rooms, and runs the read/write pumps until the peer
// disconnects.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request, playerID, worldID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err, "player_id", playerID)
		return
	}

	conn := &WSConn{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		Send:     make(chan []byte, wsSendBuffer),
	}

	playerRoom := "player:" + playerID
	worldRoom := "world:" + worldID
	h.Join(playerRoom, conn)
	h.Join(worldRoom, conn)

	go h.writePump(ws, conn)
	h.readPump(ws, conn)

	h.Leave(playerRoom, conn.ID)
	h.Leave(worldRoom, conn.ID)
	close(conn.Send)
}

func (h *WSHub) writePump(ws *websocket.Conn, conn *WSConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer ws.Close()

	for {
		select {
		case payload, ok := <-conn.Send:
			if !ok {
				ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(wsWriteTimeout))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("ws write failed", "connID", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames. The server pushes only; client frames
// beyond pong/close are discarded.
func (h *WSHub) readPump(ws *websocket.Conn, conn *WSConn) {
	defer ws.Close()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
