package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

var errRemoteClosed = errors.New("remote closed")

type fakeConn struct {
	in      chan []byte
	written chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		written: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, errRemoteClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.done:
		return errRemoteClosed
	default:
	}
	c.written <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fail  error
}

func (d *fakeDialer) Dial(_ context.Context, u string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, u)
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type recorder struct {
	opens    atomic.Int32
	closes   atomic.Int32
	messages chan []byte
}

func newRecorder() *recorder { return &recorder{messages: make(chan []byte, 16)} }

func (r *recorder) OnOpen()               { r.opens.Add(1) }
func (r *recorder) OnMessage(data []byte) { r.messages <- data }
func (r *recorder) OnClose(error)         { r.closes.Add(1) }

type fakeRoster struct{ cleared atomic.Int32 }

func (f *fakeRoster) Clear() { f.cleared.Add(1) }

type fakeIndicator struct{ connected atomic.Bool }

func (f *fakeIndicator) SetConnected(v bool) { f.connected.Store(v) }

func newManager(t *testing.T, d Dialer, l Listener, opts ...Option) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts = append([]Option{
		WithClock(clock),
		WithLogger(zaptest.NewLogger(t)),
		WithGreeting(func() types.ClientMessage {
			return types.Join{Username: "Ada", UserID: "u1", Color: "#2563eb"}
		}),
	}, opts...)
	m := New(context.Background(), "http://hub.local:8000", d, l, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

func TestRoomURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/ws/AB12CD", RoomURL("http://localhost:8000", "AB12CD"))
	assert.Equal(t, "wss://lab.example/ws/AB12CD", RoomURL("https://lab.example/", "AB12CD"))
	assert.Equal(t, "ws://x/ws/a%2Fb", RoomURL("ws://x", "a/b"))
}

func TestConnect_SendsJoinFirst(t *testing.T) {
	d := &fakeDialer{}
	rec := newRecorder()
	ind := &fakeIndicator{}
	m, _ := newManager(t, d, rec, WithIndicator(ind))

	m.Connect("AB12CD")

	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, waitFor, tick)
	assert.Equal(t, []string{"ws://hub.local:8000/ws/AB12CD"}, d.urls)

	select {
	case data := <-d.conn(0).written:
		msg, err := types.DecodeClient(data)
		require.NoError(t, err)
		assert.Equal(t, types.Join{Username: "Ada", UserID: "u1", Color: "#2563eb"}, msg)
	case <-time.After(waitFor):
		t.Fatal("join not written")
	}
	require.Eventually(t, func() bool { return rec.opens.Load() == 1 }, waitFor, tick)
	assert.True(t, ind.connected.Load())
}

func TestInboundFramesReachListener(t *testing.T) {
	d := &fakeDialer{}
	rec := newRecorder()
	m, _ := newManager(t, d, rec)

	m.Connect("AB12CD")
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, waitFor, tick)

	d.conn(0).in <- []byte(`{"type":"user_left","user_id":"u2"}`)
	select {
	case data := <-rec.messages:
		assert.JSONEq(t, `{"type":"user_left","user_id":"u2"}`, string(data))
	case <-time.After(waitFor):
		t.Fatal("frame not delivered")
	}
}

func TestSend_DroppedWhenNotOpen(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newManager(t, d, newRecorder())

	assert.NotPanics(t, func() {
		m.Send(types.StateUpdate{State: types.EmptyState()})
	})
	assert.Equal(t, 0, d.dials())
}

func TestClose_ClearsRosterAndReconnectsOnceAfterDelay(t *testing.T) {
	d := &fakeDialer{}
	rec := newRecorder()
	roster := &fakeRoster{}
	ind := &fakeIndicator{}
	m, clock := newManager(t, d, rec, WithRoster(roster), WithIndicator(ind))

	m.Connect("AB12CD")
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, waitFor, tick)

	_ = d.conn(0).Close()

	require.Eventually(t, func() bool { return m.Status() == StatusReconnecting }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.closes.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(1), roster.cleared.Load())
	assert.False(t, ind.connected.Load())

	clock.Advance(2999 * time.Millisecond)
	assert.Never(t, func() bool { return d.dials() > 1 }, 50*time.Millisecond, tick)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, waitFor, tick)
	assert.Equal(t, 2, d.dials())

	clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return d.dials() > 2 }, 50*time.Millisecond, tick)
}

func TestDialFailure_RetriesEveryDelay(t *testing.T) {
	d := &fakeDialer{fail: errors.New("connection refused")}
	m, clock := newManager(t, d, newRecorder())

	m.Connect("AB12CD")
	require.Eventually(t, func() bool { return m.Status() == StatusReconnecting }, waitFor, tick)
	assert.Equal(t, 1, d.dials())

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return d.dials() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return m.Status() == StatusReconnecting }, waitFor, tick)

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return d.dials() == 3 }, waitFor, tick)
}

func TestTeardown_CancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{fail: errors.New("connection refused")}
	m, clock := newManager(t, d, newRecorder())

	m.Connect("AB12CD")
	require.Eventually(t, func() bool { return m.Status() == StatusReconnecting }, waitFor, tick)

	require.NoError(t, m.Close())
	assert.Equal(t, StatusTornDown, m.Status())

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return d.dials() > 1 }, 50*time.Millisecond, tick)

	m.Connect("AB12CD")
	assert.Equal(t, StatusTornDown, m.Status())
}

func TestTeardown_NoRosterClearOrReconnect(t *testing.T) {
	d := &fakeDialer{}
	roster := &fakeRoster{}
	m, clock := newManager(t, d, newRecorder(), WithRoster(roster))

	m.Connect("AB12CD")
	require.Eventually(t, func() bool { return m.Status() == StatusOpen }, waitFor, tick)

	require.NoError(t, m.Close())
	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return d.dials() > 1 }, 50*time.Millisecond, tick)
	assert.Equal(t, int32(0), roster.cleared.Load())
}
