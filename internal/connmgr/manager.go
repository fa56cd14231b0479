// Package connmgr owns the real-time channel to a room: connect, fixed
// delay reconnect, and frame dispatch.
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrTornDown = errors.New("connection manager torn down")

type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusDisconnected
	StatusReconnecting
	StatusTornDown
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Listener receives channel events. Calls come from the manager's read
// goroutine and must not block for long.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(err error)
}

// RosterClearer is the piece of the presence tracker the manager resets
// when the channel drops.
type RosterClearer interface {
	Clear()
}

// Indicator is the connectivity dot.
type Indicator interface {
	SetConnected(connected bool)
}

type Settings struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		ReconnectDelay: 3 * time.Second,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	// ioCtx carries values but not cancellation; a socket whose read or
	// write context ends is torn down, and only Close may do that.
	ioCtx context.Context

	baseURL  string
	settings *Settings
	dialer   Dialer
	listener Listener
	clock    clockwork.Clock
	logger   *zap.Logger

	roster    RosterClearer
	indicator Indicator
	greeting  func() types.ClientMessage

	mu        sync.Mutex
	roomID    string
	status    Status
	active    bool
	conn      Conn
	gen       uint64
	reconnect clockwork.Timer

	writeMu sync.Mutex
}

type Option func(*Manager)

func WithSettings(s *Settings) Option { return func(m *Manager) { m.settings = s } }

func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithRoster(r RosterClearer) Option { return func(m *Manager) { m.roster = r } }

func WithIndicator(i Indicator) Option { return func(m *Manager) { m.indicator = i } }

// WithGreeting sets the message written first on every freshly opened
// channel (the join announcement).
func WithGreeting(fn func() types.ClientMessage) Option {
	return func(m *Manager) { m.greeting = fn }
}

func New(ctx context.Context, baseURL string, dialer Dialer, listener Listener, opts ...Option) *Manager {
	cancelCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		ctx:      cancelCtx,
		cancel:   cancel,
		ioCtx:    context.WithoutCancel(ctx),
		baseURL:  baseURL,
		settings: DefaultSettings(),
		dialer:   dialer,
		listener: listener,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect starts a session to the room and returns immediately. A
// previous channel, if any, is abandoned and any pending reconnect is
// cancelled.
func (m *Manager) Connect(roomID string) {
	m.mu.Lock()
	if m.status == StatusTornDown {
		m.mu.Unlock()
		return
	}
	m.roomID = roomID
	m.active = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	old := m.conn
	m.conn = nil
	m.gen++
	gen := m.gen
	m.status = StatusConnecting
	m.mu.Unlock()

	if old != nil {
		go func() { _ = old.Close() }()
	}
	go m.run(gen, roomID)
}

func (m *Manager) run(gen uint64, roomID string) {
	log := m.logger.With(zap.String("room_id", roomID), zap.Uint64("gen", gen))
	u := RoomURL(m.baseURL, roomID)

	ctx, cancel := context.WithTimeout(m.ctx, m.settings.DialTimeout)
	conn, err := m.dialer.Dial(ctx, u)
	cancel()
	if err != nil {
		log.Warn("dial failed", zap.String("url", u), zap.Error(err))
		m.closed(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.status == StatusTornDown {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.status = StatusOpen
	m.mu.Unlock()

	log.Info("channel open")
	m.indicate(true)

	if m.greeting != nil {
		if err := m.send(conn, m.greeting()); err != nil {
			log.Warn("greeting failed", zap.Error(err))
		}
	}
	m.listener.OnOpen()

	for {
		data, err := conn.Read(m.ioCtx)
		if err != nil {
			log.Info("channel closed", zap.Error(err))
			m.closed(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.listener.OnMessage(data)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// closed moves to disconnected, clears the roster and, while the session
// is active, schedules the single reconnect attempt.
func (m *Manager) closed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.status == StatusTornDown {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.status = StatusDisconnected
	if m.active && m.reconnect == nil {
		m.status = StatusReconnecting
		m.reconnect = m.clock.AfterFunc(m.settings.ReconnectDelay, func() { m.fireReconnect(gen) })
		m.logger.Info("reconnect scheduled", zap.String("room_id", m.roomID), zap.Duration("delay", m.settings.ReconnectDelay))
	}
	m.mu.Unlock()

	m.indicate(false)
	if m.roster != nil {
		m.roster.Clear()
	}
	m.listener.OnClose(cause)
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	roomID := m.roomID
	m.mu.Unlock()

	m.logger.Info("reconnecting", zap.String("room_id", roomID))
	m.Connect(roomID)
}

// Send writes msg if the channel is open. Delivery is never guaranteed:
// when the channel is not open the message is logged and dropped.
func (m *Manager) Send(msg types.ClientMessage) {
	m.mu.Lock()
	conn := m.conn
	open := m.status == StatusOpen
	m.mu.Unlock()

	if !open || conn == nil {
		m.logger.Warn("send skipped, channel not open", zap.String("type", string(msg.Kind())))
		return
	}
	if err := m.send(conn, msg); err != nil {
		m.logger.Warn("send failed", zap.String("type", string(msg.Kind())), zap.Error(err))
	}
}

func (m *Manager) send(conn Conn, msg types.ClientMessage) error {
	data, err := types.Encode(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(m.ioCtx, m.settings.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}

// Close tears the manager down: the pending reconnect is cancelled and
// the channel is closed. The manager cannot be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.status == StatusTornDown {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusTornDown
	m.active = false
	m.gen++
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()
	m.indicate(false)
	if conn == nil {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.Close()
}

func (m *Manager) indicate(connected bool) {
	if m.indicator != nil {
		m.indicator.SetConnected(connected)
	}
}
