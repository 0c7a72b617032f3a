package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

// fakeDispatch is a minimal hub: upgrade, answer join requests, let tests
// push events and kill connections.
type fakeDispatch struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	ackSuccess bool
	silent     bool         // never answer the join request
	reject     atomic.Bool  // refuse upgrades (simulated outage)
	delay      atomic.Int64 // nanoseconds to stall before upgrading

	accepts  atomic.Int32
	rejected atomic.Int32

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
}

func newFakeDispatch(t *testing.T) *fakeDispatch {
	t.Helper()
	f := &fakeDispatch{ackSuccess: true}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDispatch) handle(w http.ResponseWriter, r *http.Request) {
	if d := f.delay.Load(); d > 0 {
		time.Sleep(time.Duration(d))
	}
	if f.reject.Load() {
		f.rejected.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	f.mu.Lock()
	f.tokens = append(f.tokens, r.URL.Query().Get("token"))
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.accepts.Add(1)
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event == domain.EventJoinBranch && !f.silent {
			var req domain.JoinRequest
			_ = json.Unmarshal(env.Data, &req)
			ack, _ := domain.NewEnvelope(domain.EventJoinAck, domain.JoinAck{BranchID: req.BranchID, Success: f.ackSuccess})
			_ = conn.WriteJSON(ack)
		}
	}
}

func (f *fakeDispatch) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeDispatch) push(t *testing.T, event string, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns)
	require.NoError(t, f.conns[len(f.conns)-1].WriteJSON(env))
}

func (f *fakeDispatch) dropConns() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
	f.conns = nil
}

func newManager(f *fakeDispatch, base time.Duration) *Manager {
	return NewManager(Config{
		URL:            f.url(),
		BackoffBase:    base,
		JoinAckTimeout: 200 * time.Millisecond,
	}, logger.New("session-test"))
}

func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestConnectJoinsBranchAudience(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)
	assert.Equal(t, int32(1), f.accepts.Load())
}

func TestConnectIdempotentForSameBranch(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	m.mu.Lock()
	first := m.conn
	m.mu.Unlock()

	require.NoError(t, m.Connect("main", "tok-1"))

	m.mu.Lock()
	second := m.conn
	m.mu.Unlock()

	assert.Same(t, first, second, "live session for the same branch must be reused")
	assert.Equal(t, int32(1), f.accepts.Load())
}

func TestBackoffDelaySchedule(t *testing.T) {
	base := time.Second
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, expected[attempt-1], backoffDelay(base, attempt))
	}
}

func TestJoinRejectionKeepsConnectionOpen(t *testing.T) {
	f := newFakeDispatch(t)
	f.ackSuccess = false
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	ev := waitFor(t, m.Events(), EventError)
	assert.ErrorIs(t, ev.Err, ErrJoinRejected)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.True(t, m.connected, "transport stays open after a rejected join")
}

func TestJoinAckTimeoutFailsConnect(t *testing.T) {
	f := newFakeDispatch(t)
	f.silent = true
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	err := m.Connect("main", "tok-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join ack timeout")
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	f.dropConns()
	waitFor(t, m.Events(), EventDisconnected)
	waitFor(t, m.Events(), EventConnected)
	assert.Equal(t, int32(2), f.accepts.Load())
}

func TestReconnectCeilingFiresErrorExactlyOnce(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	f.reject.Store(true)
	f.dropConns()
	waitFor(t, m.Events(), EventDisconnected)

	// All five attempts fail fast; collect everything that follows.
	var maxErrors int
	timeout := time.After(500 * time.Millisecond)
collect:
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == EventError && ev.Err == ErrMaxReconnectAttempts {
				maxErrors++
			}
		case <-timeout:
			break collect
		}
	}

	assert.Equal(t, 1, maxErrors, "ceiling error must fire exactly once")
	assert.Equal(t, int32(5), f.rejected.Load(), "exactly five reconnect attempts")
}

func TestVisibilitySignalTriggersImmediateReconnect(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Minute) // backoff far in the future
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	f.reject.Store(true)
	f.dropConns()
	waitFor(t, m.Events(), EventDisconnected)

	// Outage over; the pending backoff timer would wait a minute, the
	// visibility signal must not.
	f.reject.Store(false)
	m.SignalVisible()
	waitFor(t, m.Events(), EventConnected)
}

// A visibility signal arriving while the backoff dial is still in flight must
// not open a second connection: one logical session means one socket, and one
// delivery per pushed event.
func TestVisibilityDuringInFlightDialKeepsOneSession(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, 10*time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	// Make the next upgrade slow, then kill the session so the backoff
	// timer starts a dial that will hang in the handshake.
	f.delay.Store(int64(100 * time.Millisecond))
	f.dropConns()
	waitFor(t, m.Events(), EventDisconnected)

	time.Sleep(30 * time.Millisecond) // backoff fired, dial now stalled
	m.SignalVisible()

	waitFor(t, m.Events(), EventConnected)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), f.accepts.Load(), "the in-flight dial owns the reconnect")

	f.delay.Store(0)
	f.push(t, domain.EventNewOrder, domain.Order{ID: "o-7", BranchID: "main", Status: domain.StatusPending})
	ev := waitFor(t, m.Events(), EventNewOrder)
	assert.Equal(t, "o-7", ev.Order.ID)

	select {
	case ev := <-m.Events():
		if ev.Kind == EventNewOrder {
			t.Fatalf("order %s delivered twice", ev.Order.ID)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRefreshTokenReestablishesSession(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	require.NoError(t, m.RefreshToken("tok-2"))
	waitFor(t, m.Events(), EventConnected)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"tok-1", "tok-2"}, f.tokens)
}

func TestInboundEventsForwarded(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)
	defer m.Disconnect()

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	f.push(t, domain.EventNewOrder, domain.Order{ID: "o-1", BranchID: "main", Status: domain.StatusPending})
	ev := waitFor(t, m.Events(), EventNewOrder)
	assert.Equal(t, "o-1", ev.Order.ID)

	f.push(t, domain.EventStatusChanged, domain.StatusChange{OrderID: "o-1", Status: domain.StatusConfirmed})
	ev = waitFor(t, m.Events(), EventStatusChanged)
	assert.Equal(t, domain.StatusConfirmed, ev.Change.Status)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFakeDispatch(t)
	m := newManager(f, time.Millisecond)

	require.NoError(t, m.Connect("main", "tok-1"))
	waitFor(t, m.Events(), EventConnected)

	m.Disconnect()
	m.Disconnect()

	assert.ErrorIs(t, m.Connect("main", "tok-1"), ErrClosed)
}
