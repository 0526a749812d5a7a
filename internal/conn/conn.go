// Package conn maintains the single authenticated transport to the
// session event stream backend, transparently replacing it on failure.
package conn

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"
)

// State of the connection lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
)

// DisconnectReason distinguishes why a connection ended up Idle. UI code
// needs to tell "user disconnected" apart from "backend unreachable".
type DisconnectReason string

const (
	// DisconnectManual is a disconnect initiated by the caller.
	DisconnectManual DisconnectReason = "manual"

	// DisconnectExhausted means every reconnect attempt failed and the
	// Manager gave up. Recovering requires an explicit new Connect.
	DisconnectExhausted DisconnectReason = "exhausted"
)

const (
	// DefaultBackoff is the fixed delay between a failed attempt and the next.
	DefaultBackoff = 3000 * time.Millisecond

	// DefaultMaxAttempts bounds consecutive failed connection attempts.
	DefaultMaxAttempts = 5

	// defaultDialTimeout bounds a single dial, handshake included.
	defaultDialTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Send when no transport is open.
	// Nothing is queued; the caller decides whether to retry.
	ErrNotConnected = errors.New("not connected")

	// ErrMissingToken is returned by Connect when no credential is supplied.
	ErrMissingToken = errors.New("auth token is required")
)

// Config holds configuration for the Manager.
type Config struct {
	// URL is the backend endpoint, e.g. "wss://host/api/stream".
	URL string

	// Dialer opens transports. Defaults to WebSocketDialer.
	Dialer Dialer

	// Backoff is the fixed reconnect delay. Defaults to DefaultBackoff.
	Backoff time.Duration

	// MaxAttempts bounds consecutive failed attempts. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// DialTimeout bounds one dial. Defaults to 10s.
	DialTimeout time.Duration

	// OnFrame is invoked synchronously for every inbound frame, in the
	// order the transport received them.
	OnFrame func(data []byte)

	// OnDisconnect is invoked when the connection settles in Idle, with
	// the reason. Not invoked for individual failed attempts.
	OnDisconnect func(reason DisconnectReason)
}

// Manager owns exactly one transport at a time. A reconnect fully retires
// the previous transport before a new one is dialed; a generation counter
// makes callbacks from superseded attempts no-ops, so no frame is ever
// delivered twice and a stale dial cannot resurrect a retired connection.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	state       State
	transport   Transport
	token       string
	attempts    int
	manualClose bool
	generation  uint64
	retryTimer  *time.Timer
	lastReason  DisconnectReason
}

// NewManager creates an idle Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebSocketDialer
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Manager{
		cfg:   cfg,
		state: StateIdle,
	}
}

// Connect starts a new connection authenticated by token. It is a no-op
// if a connection is already being established or open. A missing token
// is a precondition failure: nothing is dialed and no retry is scheduled.
func (m *Manager) Connect(token string) error {
	if token == "" {
		return ErrMissingToken
	}

	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen || m.state == StateReconnecting {
		m.mu.Unlock()
		return nil
	}

	m.token = token
	m.manualClose = false
	m.attempts = 0
	m.lastReason = ""
	m.state = StateConnecting
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	go m.dial(gen)
	return nil
}

// Disconnect closes the connection and suppresses automatic reconnection.
// Any pending reconnect timer is cancelled and any in-flight dial is
// invalidated.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	m.lastReason = DisconnectManual
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.generation++
	t := m.transport
	m.transport = nil
	wasIdle := m.state == StateIdle
	m.state = StateIdle
	m.mu.Unlock()

	if t != nil {
		t.Close()
	}
	if !wasIdle && m.cfg.OnDisconnect != nil {
		m.cfg.OnDisconnect(DisconnectManual)
	}
}

// Send writes one frame to the live transport. It fails with
// ErrNotConnected in every state but Open and never buffers.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	if m.state != StateOpen || m.transport == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	t := m.transport
	m.mu.Unlock()

	return t.WriteMessage(data)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the failed-attempt counter for the current connection.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastDisconnectReason reports why the Manager last settled in Idle, or ""
// if it never has.
func (m *Manager) LastDisconnectReason() DisconnectReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReason
}

// dial performs one connection attempt for the given generation.
func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.manualClose {
		m.mu.Unlock()
		return
	}
	m.attempts++
	token := m.token
	m.mu.Unlock()

	endpoint, err := authURL(m.cfg.URL, token)
	if err != nil {
		log.Printf("conn: invalid endpoint URL %q: %v", m.cfg.URL, err)
		m.handleClosed(gen, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	t, err := m.cfg.Dialer(ctx, endpoint)
	cancel()

	m.mu.Lock()
	if gen != m.generation || m.manualClose {
		m.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return
	}

	if err != nil {
		m.mu.Unlock()
		m.handleClosed(gen, err)
		return
	}

	m.transport = t
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()

	go m.readLoop(gen, t)
}

// readLoop pumps inbound frames from one transport until it fails.
// Frames are delivered synchronously so per-session ordering is preserved.
func (m *Manager) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(data)
		}
	}
}

// handleClosed reacts to a transport going down: reconnect with backoff
// while attempts remain, otherwise settle in Idle.
func (m *Manager) handleClosed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.generation {
		// A superseded transport's close event; the connection it belonged
		// to is already retired.
		m.mu.Unlock()
		return
	}
	m.transport = nil

	if m.manualClose {
		m.state = StateIdle
		m.mu.Unlock()
		return
	}

	reason := classifyClose(cause)
	if reason.worthLogging() {
		log.Printf("conn: transport closed (%s): %v", reason, cause)
	}

	if m.attempts >= m.cfg.MaxAttempts {
		m.state = StateIdle
		m.lastReason = DisconnectExhausted
		m.mu.Unlock()

		log.Printf("conn: giving up after %d attempts", m.cfg.MaxAttempts)
		if m.cfg.OnDisconnect != nil {
			m.cfg.OnDisconnect(DisconnectExhausted)
		}
		return
	}

	m.state = StateReconnecting
	m.retryTimer = time.AfterFunc(m.cfg.Backoff, func() {
		m.retry(gen)
	})
	m.mu.Unlock()
}

// retry transitions from Reconnecting back to Connecting once the backoff
// delay has elapsed.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.manualClose || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.state = StateConnecting
	m.mu.Unlock()

	m.dial(gen)
}

// authURL embeds the opaque credential in the endpoint query string.
func authURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
