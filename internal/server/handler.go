package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agent-console/stream/internal/session"
	"github.com/agent-console/stream/pkg/wire"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 8192

	// Frames of replay kept per session.
	defaultHistorySize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler handles console WebSocket connections and runs the simulated
// agent loop that turns commands into session frames.
type Handler struct {
	hub      *Hub
	sessions *session.Manager

	mu        sync.Mutex
	seqs      map[string]int64
	histories map[string]*FrameHistory
}

// NewHandler creates a new stream handler.
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{
		hub:       NewHub(),
		sessions:  sessions,
		seqs:      make(map[string]int64),
		histories: make(map[string]*FrameHistory),
	}
}

// Hub returns the console hub.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// HandleConnection upgrades the HTTP request and serves the console until
// it disconnects. Callers authenticate the request first.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn)
	h.hub.Register(client)

	// Replay recent frames so a console attaching mid-session catches up.
	h.sendHistory(client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// sendHistory replays each session's buffered frames to one console.
// Order within a session is preserved; order across sessions is not.
func (h *Handler) sendHistory(client *Client) {
	h.mu.Lock()
	histories := make([]*FrameHistory, 0, len(h.histories))
	for _, history := range h.histories {
		histories = append(histories, history)
	}
	h.mu.Unlock()

	for _, history := range histories {
		for _, frame := range history.Snapshot() {
			client.Send(frame)
		}
	}
}

// readPump pumps commands from the console connection.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("server: console read error: %v", err)
			}
			break
		}

		var cmd wire.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("server: dropping malformed command: %v", err)
			continue
		}

		h.handleCommand(cmd)
	}
}

// writePump pumps frames from the hub to the console connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per WebSocket message so the console can decode
			// each independently.
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand runs one console command through the simulated agent.
func (h *Handler) handleCommand(cmd wire.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch cmd.Type {
	case wire.CommandUserMessage:
		if cmd.SessionID == "" || cmd.Message == "" {
			return
		}
		active, err := h.sessions.IsActive(ctx, cmd.SessionID)
		if err != nil {
			log.Printf("server: session lookup failed: %v", err)
			return
		}
		if !active {
			h.broadcastError(cmd.SessionID, "unknown or ended session")
			return
		}

		// Echo the user turn, then answer it.
		h.broadcastMessage(cmd.SessionID, wire.RoleUser, "text", map[string]string{
			"text": cmd.Message,
		})
		h.broadcastMessage(cmd.SessionID, wire.RoleAssistant, "text", map[string]string{
			"text": "ack: " + cmd.Message,
		})

	case wire.CommandInterrupt:
		if cmd.SessionID == "" {
			return
		}
		h.broadcastMessage(cmd.SessionID, wire.RoleNotification, "interrupted", map[string]string{
			"text": "turn interrupted",
		})

	default:
		h.broadcastError(cmd.SessionID, "unknown command type")
	}
}

// BroadcastSessionEvent publishes a system frame for a session, e.g. on
// creation or termination.
func (h *Handler) BroadcastSessionEvent(sessionID, event string) {
	h.broadcastMessage(sessionID, wire.RoleSystem, event, map[string]string{
		"event": event,
	})
}

// broadcastMessage builds, records, and fans out one session frame.
func (h *Handler) broadcastMessage(sessionID string, role wire.Role, messageType string, payload map[string]string) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("server: failed to marshal payload: %v", err)
		return
	}

	h.mu.Lock()
	h.seqs[sessionID]++
	seq := h.seqs[sessionID]
	history, ok := h.histories[sessionID]
	if !ok {
		history = NewFrameHistory(defaultHistorySize)
		h.histories[sessionID] = history
	}
	h.mu.Unlock()

	msg := &wire.Message{
		SessionID:   sessionID,
		Role:        role,
		MessageType: messageType,
		MessageID:   uuid.New().String(),
		Sequence:    seq,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Payload:     body,
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("server: failed to marshal frame: %v", err)
		return
	}

	history.Append(frame)
	h.hub.Broadcast(frame)
}

// broadcastError fans out an error frame. Error frames carry no sequence
// number and are not replayed.
func (h *Handler) broadcastError(sessionID, message string) {
	frame, err := json.Marshal(&wire.Error{
		SessionID: sessionID,
		Type:      "error",
		Message:   message,
	})
	if err != nil {
		return
	}
	h.hub.Broadcast(frame)
}

// DropSession forgets a session's sequence counter and replay buffer.
func (h *Handler) DropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.seqs, sessionID)
	delete(h.histories, sessionID)
}

// Close closes all console connections.
func (h *Handler) Close() {
	h.hub.Close()
}
