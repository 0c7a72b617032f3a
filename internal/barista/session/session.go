// Package session owns the single duplex connection between a barista console
// and the dispatch hub: connect, join the branch audience, reconnect with
// backoff, re-authenticate on token refresh, tear down.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

var (
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
	ErrSessionExpired       = errors.New("session expired")
	ErrJoinRejected         = errors.New("join rejected by dispatch")
	ErrClosed               = errors.New("session manager closed")
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventNewOrder
	EventStatusChanged
	EventError
)

// Event is what the consumer loop receives instead of a handler set: one
// typed stream, ordering explicit, backpressure visible.
type Event struct {
	Kind   EventKind
	Order  *domain.Order
	Change *domain.StatusChange
	Err    error
}

type Config struct {
	// URL of the dispatch websocket endpoint, e.g. ws://host:3001/ws.
	URL string

	BackoffBase          time.Duration // first reconnect delay, doubles per attempt
	MaxReconnectAttempts int
	JoinAckTimeout       time.Duration
	HandshakeTimeout     time.Duration
	EventBuffer          int
}

func (c *Config) defaults() {
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.JoinAckTimeout == 0 {
		c.JoinAckTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
}

type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	lg     *logger.Logger
	events chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	branchID  string
	token     string
	connected bool
	dialing   bool // a dialAndJoin is in flight; nobody else may start one
	closed    bool
	attempts  int
	exhausted bool // ErrMaxReconnectAttempts already delivered
	gen       int  // bumps on every dial/teardown; stale read loops check it
	retry     *time.Timer
	joinAcks  chan domain.JoinAck
}

func NewManager(cfg Config, lg *logger.Logger) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		lg:     lg,
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Events is the inbound stream. The manager never closes it; consumers stop
// when their own context does.
func (m *Manager) Events() <-chan Event { return m.events }

// Connect opens the session for the branch. When a live session already
// targets the same branch this is a no-op (the event stream stays as is), so
// repeated calls never open a second connection. A different branch tears the
// old session down first.
func (m *Manager) Connect(branchID, token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connected && m.branchID == branchID {
		m.token = token
		m.mu.Unlock()
		return nil
	}
	m.teardownLocked(false)
	m.branchID = branchID
	m.token = token
	m.attempts = 0
	m.exhausted = false
	m.mu.Unlock()

	return m.dialAndJoin()
}

// Disconnect sends a best-effort leave notice, closes the connection and
// cancels any pending reconnect. Safe to call repeatedly and from within the
// event consumer.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.teardownLocked(true)
}

// SignalVisible tells the manager the host app came back to the foreground.
// If the session is down it tries one immediate reconnect, outside the
// backoff schedule.
func (m *Manager) SignalVisible() {
	m.mu.Lock()
	if m.closed || m.connected || m.branchID == "" {
		m.mu.Unlock()
		return
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.mu.Unlock()

	m.lg.Info("visibility_reconnect", nil)
	if err := m.dialAndJoin(); err != nil {
		m.scheduleReconnect()
	}
}

// RefreshToken swaps in a renewed credential and re-establishes the session
// with it: old connection torn down, new one opened, audience rejoined.
func (m *Manager) RefreshToken(token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.token = token
	if m.branchID == "" {
		m.mu.Unlock()
		return nil
	}
	m.teardownLocked(false)
	m.mu.Unlock()

	if err := m.dialAndJoin(); err != nil {
		m.scheduleReconnect()
		return err
	}
	return nil
}

// dialAndJoin opens the websocket, emits the join request and waits for the
// acknowledgment. A missing ack within the join timeout fails the attempt. A
// negative ack keeps the transport open and surfaces ErrJoinRejected; the
// caller may retry the join by reconnecting.
//
// Dials are single-flight: at most one session may exist per manager, so a
// second caller arriving while a dial is in flight (visibility signal racing
// the backoff timer) yields to the one already running.
func (m *Manager) dialAndJoin() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.dialing || m.connected {
		m.mu.Unlock()
		return nil
	}
	m.dialing = true
	token := m.token
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
	}()

	conn, _, err := m.dialer.Dial(fmt.Sprintf("%s?token=%s", m.cfg.URL, token), nil)
	if err != nil {
		return fmt.Errorf("dial dispatch: %w", err)
	}

	acks := make(chan domain.JoinAck, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = conn
	m.connected = true
	m.gen++
	m.joinAcks = acks
	gen := m.gen
	branchID := m.branchID
	m.mu.Unlock()

	go m.readLoop(conn, gen)

	join, err := domain.NewEnvelope(domain.EventJoinBranch, domain.JoinRequest{BranchID: branchID})
	if err != nil {
		m.dropConn(gen)
		return err
	}
	if err := conn.WriteJSON(join); err != nil {
		m.dropConn(gen)
		return fmt.Errorf("send join: %w", err)
	}

	select {
	case ack := <-acks:
		if !ack.Success {
			m.emit(Event{Kind: EventError, Err: fmt.Errorf("%w: branch %s", ErrJoinRejected, branchID)})
			return nil
		}
	case <-time.After(m.cfg.JoinAckTimeout):
		m.dropConn(gen)
		return fmt.Errorf("join ack timeout for branch %s", branchID)
	}

	m.mu.Lock()
	m.attempts = 0
	m.exhausted = false
	m.mu.Unlock()
	m.lg.Info("session_joined", map[string]any{"branch_id": branchID})
	m.emit(Event{Kind: EventConnected})
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			m.onConnLost(gen)
			return
		}
		m.dispatch(env, gen)
	}
}

func (m *Manager) dispatch(env domain.Envelope, gen int) {
	// A frame read by a superseded loop must not reach the consumer: its
	// connection was already replaced and the live loop delivers the same
	// stream.
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}

	switch env.Event {
	case domain.EventJoinAck:
		var ack domain.JoinAck
		if json.Unmarshal(env.Data, &ack) == nil {
			m.mu.Lock()
			acks := m.joinAcks
			m.mu.Unlock()
			select {
			case acks <- ack:
			default:
			}
		}
	case domain.EventNewOrder:
		var order domain.Order
		if json.Unmarshal(env.Data, &order) == nil {
			m.emit(Event{Kind: EventNewOrder, Order: &order})
		}
	case domain.EventStatusChanged:
		var change domain.StatusChange
		if json.Unmarshal(env.Data, &change) == nil {
			m.emit(Event{Kind: EventStatusChanged, Change: &change})
		}
	case domain.EventConnectionError:
		var ce domain.ConnectionError
		if json.Unmarshal(env.Data, &ce) == nil {
			m.emit(Event{Kind: EventError, Err: errors.New(ce.Message)})
		}
	}
}

// onConnLost runs when a read loop dies. Stale generations (already torn down
// or replaced) are ignored; a genuine loss starts the backoff schedule.
func (m *Manager) onConnLost(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen || !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.conn = nil
	m.mu.Unlock()

	m.emit(Event{Kind: EventDisconnected})
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || m.connected || m.retry != nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		already := m.exhausted
		m.exhausted = true
		attempts := m.attempts
		m.mu.Unlock()
		if !already {
			m.lg.Error("reconnect_exhausted", ErrMaxReconnectAttempts, map[string]any{"attempts": attempts})
			m.emit(Event{Kind: EventError, Err: ErrMaxReconnectAttempts})
		}
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := backoffDelay(m.cfg.BackoffBase, attempt)
	m.retry = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.retry = nil
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		if err := m.dialAndJoin(); err != nil {
			m.lg.Warn("reconnect_failed", map[string]any{"attempt": attempt, "error": err.Error()})
			m.scheduleReconnect()
		}
	})
	m.mu.Unlock()
	m.lg.Info("reconnect_scheduled", map[string]any{"attempt": attempt, "delay": delay.String()})
}

// backoffDelay is base * 2^(attempt-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}

// teardownLocked closes the live connection, optionally announcing the leave.
// Callers hold m.mu.
func (m *Manager) teardownLocked(announce bool) {
	if m.conn != nil {
		if announce && m.branchID != "" {
			if leave, err := domain.NewEnvelope(domain.EventLeaveBranch, domain.JoinRequest{BranchID: m.branchID}); err == nil {
				_ = m.conn.WriteJSON(leave) // best-effort, not awaited
			}
		}
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.gen++
}

func (m *Manager) dropConn(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.gen++
}

// emit never blocks: when the consumer lags behind the buffer, the event is
// dropped and logged. Consoles resynchronize from the store on reconnect.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.lg.Warn("event_dropped", map[string]any{"kind": int(ev.Kind)})
	}
}
