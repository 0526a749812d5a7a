// Package stream is the public surface of the real-time session messaging
// layer. External code connects, sends, and subscribes exclusively through
// the Client; the transport, codec, and router behind it are not exposed.
package stream

import (
	"log"
	"time"

	"github.com/agent-console/stream/internal/conn"
	"github.com/agent-console/stream/internal/router"
	"github.com/agent-console/stream/pkg/wire"
)

// Handler consumes inbound frames for a subscription.
type Handler func(frame wire.Frame)

// DisconnectReason tags why the connection settled in the disconnected
// state: closed by the caller, or the backend stayed unreachable until
// the retry budget ran out.
type DisconnectReason = conn.DisconnectReason

const (
	DisconnectManual    = conn.DisconnectManual
	DisconnectExhausted = conn.DisconnectExhausted
)

// ErrNotConnected is returned by send operations while no transport is
// open. Nothing is queued.
var ErrNotConnected = conn.ErrNotConnected

// ErrMissingToken is returned by Connect when no credential is supplied.
var ErrMissingToken = conn.ErrMissingToken

// Config holds configuration for the Client.
type Config struct {
	// URL is the backend stream endpoint, e.g. "wss://host/api/stream".
	URL string

	// OnDisconnect is invoked when the connection becomes terminally
	// disconnected, with the tagged reason. Optional.
	OnDisconnect func(reason DisconnectReason)

	// Backoff and MaxAttempts tune the reconnect policy. Zero values take
	// the defaults (3 s, 5 attempts).
	Backoff     time.Duration
	MaxAttempts int

	// dialer overrides the transport dialer in tests.
	dialer conn.Dialer
}

// Client is the session messaging facade. One long-lived instance per
// process owns the single backend connection; consumers hold a reference
// to it rather than reaching for shared globals.
type Client struct {
	router  *router.Router
	manager *conn.Manager
}

// NewClient creates a disconnected Client.
func NewClient(cfg Config) *Client {
	c := &Client{
		router: router.New(),
	}
	c.manager = conn.NewManager(conn.Config{
		URL:          cfg.URL,
		Dialer:       cfg.dialer,
		Backoff:      cfg.Backoff,
		MaxAttempts:  cfg.MaxAttempts,
		OnFrame:      c.handleFrame,
		OnDisconnect: cfg.OnDisconnect,
	})
	return c
}

// Connect opens the backend connection authenticated by token. No-op if
// already connecting or connected.
func (c *Client) Connect(token string) error {
	return c.manager.Connect(token)
}

// Disconnect closes the connection and disables automatic reconnection
// until the next Connect.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// Connected reports whether a transport is currently open.
func (c *Client) Connected() bool {
	return c.manager.State() == conn.StateOpen
}

// LastDisconnectReason reports why the client last became disconnected,
// or "" if it never has.
func (c *Client) LastDisconnectReason() DisconnectReason {
	return c.manager.LastDisconnectReason()
}

// SendUserMessage sends user text to a session. While disconnected it
// performs no write and returns ErrNotConnected; the message is never
// queued for later.
func (c *Client) SendUserMessage(sessionID, text string) error {
	return c.send(wire.Command{
		SessionID: sessionID,
		Type:      wire.CommandUserMessage,
		Message:   text,
	})
}

// Interrupt asks the backend to abort the session's current turn.
func (c *Client) Interrupt(sessionID string) error {
	return c.send(wire.Command{
		SessionID: sessionID,
		Type:      wire.CommandInterrupt,
	})
}

func (c *Client) send(cmd wire.Command) error {
	data, err := wire.Encode(cmd)
	if err != nil {
		return err
	}
	if err := c.manager.Send(data); err != nil {
		log.Printf("stream: dropping %s for session %s: %v", cmd.Type, cmd.SessionID, err)
		return err
	}
	return nil
}

// Subscribe registers handler for frames belonging to sessionID. The
// returned closure removes exactly this registration.
func (c *Client) Subscribe(sessionID string, handler Handler) func() {
	return c.router.Subscribe(sessionID, router.Handler(handler))
}

// SubscribeGlobal registers handler for every inbound frame regardless of
// session.
func (c *Client) SubscribeGlobal(handler Handler) func() {
	return c.router.Subscribe(router.Wildcard, router.Handler(handler))
}

// handleFrame decodes one inbound frame and fans it out. A malformed
// frame is logged and dropped; it is never treated as a connection fault.
func (c *Client) handleFrame(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		log.Printf("stream: dropping inbound frame: %v", err)
		return
	}
	c.router.Dispatch(frame)
}
