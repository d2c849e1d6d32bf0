// Package livefeed pushes script progress, credential record changes and
// device log lines to connected browsers over websockets.
package livefeed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Browsers never send anything but control frames.
	maxMessageSize = 512
	// Outbound frames buffered per client before it is dropped as too slow.
	sendBuffer = 256
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ProgressListener  = (*Hub)(nil)
	_ driven.RecordListener    = (*Hub)(nil)
	_ driven.DeviceLogListener = (*Hub)(nil)
)

// Hub fans out tracker, credential log and device log changes to websocket
// clients.
// Listener callbacks never block: a client whose buffer is full is
// disconnected and reloads its state on reconnect.
type Hub struct {
	mu            sync.Mutex
	clients       map[*client]struct{}
	closed        bool
	upgrader      websocket.Upgrader
	previewLength int
	logger        *slog.Logger
}

// NewHub creates a hub. previewLength is the number of hex characters of a
// payload shown in record messages.
func NewHub(previewLength int, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		previewLength: previewLength,
		logger:        logger,
	}
}

// ScriptLoaded implements driven.ProgressListener.
func (h *Hub) ScriptLoaded(script model.Script, seq uint64) {
	h.broadcast(scriptMessage(script, seq))
}

// CursorMoved implements driven.ProgressListener.
func (h *Hub) CursorMoved(change model.CursorChange) {
	h.broadcast(cursorMessage(change))
}

// RecordAppended implements driven.RecordListener.
func (h *Hub) RecordAppended(rec model.CredentialRecord) {
	h.broadcast(recordMessage(TypeRecordAppended, rec, h.previewLength))
}

// RecordUpdated implements driven.RecordListener.
func (h *Hub) RecordUpdated(rec model.CredentialRecord) {
	h.broadcast(recordMessage(TypeRecordUpdated, rec, h.previewLength))
}

// DeviceLogAppended implements driven.DeviceLogListener.
func (h *Hub) DeviceLogAppended(entry model.DeviceLogEntry) {
	h.broadcast(deviceLogMessage(entry))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("live feed client connected", "client", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal live feed message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow live feed client", "client", c.id)
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("live feed client disconnected", "client", c.id)
	}
}
