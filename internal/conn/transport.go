package conn

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport is one live full-duplex connection to the backend. The Manager
// is its sole owner; no other component touches it directly.
type Transport interface {
	// ReadMessage blocks until the next inbound frame or a close/error.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one outbound frame. Safe for concurrent use.
	WriteMessage(data []byte) error

	// Close tears the connection down. Any blocked ReadMessage returns.
	Close() error
}

// Dialer opens a Transport to the given URL. Swapped out in tests.
type Dialer func(ctx context.Context, url string) (Transport, error)

// WebSocketDialer dials the backend over WebSocket.
func WebSocketDialer(ctx context.Context, url string) (Transport, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: c}, nil
}

// wsTransport adapts a gorilla connection to the Transport interface.
// gorilla permits one concurrent writer, so writes are serialized here.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// closeReason classifies why a transport went down. Each reason gets one
// deliberate policy branch in the Manager instead of string comparison on
// error text.
type closeReason int

const (
	// closeNormal is a clean close handshake from the peer.
	closeNormal closeReason = iota

	// closeGoingAway means the peer is shutting down or restarting.
	closeGoingAway

	// closeAbnormal is an unexpected close code or a dropped connection.
	closeAbnormal

	// closeTransport is a network-level failure with no close frame.
	closeTransport
)

func (r closeReason) String() string {
	switch r {
	case closeNormal:
		return "normal closure"
	case closeGoingAway:
		return "peer going away"
	case closeAbnormal:
		return "abnormal closure"
	default:
		return "transport failure"
	}
}

// classifyClose maps a read/dial error to a closeReason.
func classifyClose(err error) closeReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure:
			return closeNormal
		case websocket.CloseGoingAway:
			return closeGoingAway
		default:
			return closeAbnormal
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return closeTransport
	}

	return closeAbnormal
}

// worthLogging reports whether a close should be logged. Clean closes and
// peer restarts are routine; everything else an operator wants to see.
func (r closeReason) worthLogging() bool {
	return r != closeNormal && r != closeGoingAway
}
