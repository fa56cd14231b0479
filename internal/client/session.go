// Package client is the whiteboard client core: one Session per joined
// room, driving scene, gestures, presence and the hub channel from a
// single event loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/DoyleJ11/lab-whiteboard/internal/connmgr"
	"github.com/DoyleJ11/lab-whiteboard/internal/interaction"
	"github.com/DoyleJ11/lab-whiteboard/internal/presence"
	"github.com/DoyleJ11/lab-whiteboard/internal/scene"
	"github.com/DoyleJ11/lab-whiteboard/internal/syncproto"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")
var ErrAlreadyStarted = errors.New("session already started")

type Deps struct {
	Renderer Renderer
	Notifier Notifier
	Status   StatusListener
	Dialer   connmgr.Dialer
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

type Session struct {
	cfg    Config
	info   types.Session
	clock  clockwork.Clock
	logger *zap.Logger
	dialer connmgr.Dialer

	renderer Renderer
	notifier Notifier
	status   StatusListener

	// Owned by the loop goroutine.
	scene     *scene.Scene
	ids       *scene.IDSource
	machine   *interaction.Machine
	engine    *syncproto.Engine
	lifecycle Lifecycle
	frameDue  bool

	tracker *presence.Tracker
	conn    *connmgr.Manager

	inbox    chan msg
	frameCh  chan struct{}
	rosterCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	closeErr  error
}

// New builds a session seeded with initial, typically the room_state
// returned by the join call. Nothing happens until Start.
func New(cfg Config, info types.Session, initial types.State, deps Deps) *Session {
	if info.UserColor == "" {
		info.UserColor = cfg.DefaultColor
	}
	s := &Session{
		cfg:      cfg,
		info:     info,
		clock:    deps.Clock,
		logger:   deps.Logger,
		dialer:   deps.Dialer,
		renderer: deps.Renderer,
		notifier: deps.Notifier,
		status:   deps.Status,
		inbox:    make(chan msg, 256),
		frameCh:  make(chan struct{}, 1),
		rosterCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.dialer == nil {
		s.dialer = connmgr.NewWebsocketDialer(cfg.DialTimeout)
	}
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.status == nil {
		s.status = nopStatus{}
	}
	s.logger = s.logger.With(zap.String("room_id", info.RoomID), zap.String("user_id", info.UserID))

	s.scene = scene.FromState(initial)
	s.ids = scene.NewIDSource(s.clock)
	s.machine = interaction.NewMachine(cfg.machineConfig(), s.scene, s.ids)
	s.machine.SceneReplaced()

	s.tracker = presence.New(info.Participant(),
		presence.WithClock(s.clock),
		presence.WithLogger(s.logger),
		presence.WithOnChange(s.rosterChanged),
	)
	s.engine = syncproto.New(syncproto.Identity{
		UserID:   info.UserID,
		Username: info.Username,
		Color:    info.UserColor,
	}, s.scene, s.tracker, nil,
		syncproto.WithClock(s.clock),
		syncproto.WithLogger(s.logger),
		syncproto.WithNotifier(joinToast{s}),
	)
	return s
}

func (s *Session) Info() types.Session { return s.info }

// Start opens the channel and runs the loop until ctx ends or Close is
// called.
func (s *Session) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		err = nil
		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		s.conn = connmgr.New(loopCtx, s.cfg.HubURL, s.dialer, listener{s},
			connmgr.WithSettings(s.cfg.connSettings()),
			connmgr.WithClock(s.clock),
			connmgr.WithLogger(s.logger),
			connmgr.WithRoster(s.tracker),
			connmgr.WithGreeting(s.engine.JoinMessage),
		)
		s.engine.SetSender(s.conn)

		s.setLifecycle(Connecting)
		s.conn.Connect(s.info.RoomID)
		go s.loop(loopCtx)
	})
	return err
}

// Close tears the session down: the reconnect timer, presence timers
// and the channel all stop. It is safe to call more than once.
func (s *Session) Close() error {
	s.stopOnce.Do(func() {
		s.startOnce.Do(func() {}) // a later Start becomes a no-op
		if s.cancel == nil {
			s.closeErr = s.teardown()
			close(s.done)
			return
		}
		s.cancel()
	})
	<-s.done
	return s.closeErr
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	s.guard("initial render", func() {
		s.renderScene()
		s.renderRoster()
	})
	for {
		select {
		case <-ctx.Done():
			s.closeErr = s.teardown()
			return
		case <-s.frameCh:
			s.guard("frame", s.frame)
		case <-s.rosterCh:
			s.guard("roster", s.renderRoster)
		case m := <-s.inbox:
			s.guard(fmt.Sprintf("%T", m), func() { s.handle(m) })
		}
	}
}

// guard keeps a panicking handler from taking the loop down. The scene
// keeps whatever state it had.
func (s *Session) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session handler panicked", zap.String("handler", what), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

func (s *Session) handle(m msg) {
	switch m := m.(type) {
	case opened:
		s.setLifecycle(Connected)

	case closed:
		switch s.conn.Status() {
		case connmgr.StatusReconnecting, connmgr.StatusConnecting:
			s.setLifecycle(Reconnecting)
		default:
			s.setLifecycle(Disconnected)
		}

	case inbound:
		res, err := s.engine.Handle(m.data)
		if err != nil {
			return
		}
		if res.SceneReplaced {
			s.machine.SceneReplaced()
			s.renderScene()
		}

	case setCanvas:
		s.machine.SetCanvas(m.c)

	case pointerDown:
		s.apply(s.machine.Down(m.p))

	case pointerMove:
		if s.machine.Move(m.p) && !s.frameDue {
			s.frameDue = true
			s.clock.AfterFunc(s.cfg.FrameInterval, func() {
				select {
				case s.frameCh <- struct{}{}:
				default:
				}
			})
		}

	case pointerUp:
		s.apply(s.machine.Up(m.p))

	case edit:
		s.logger.Debug("edit", zap.String("op", m.name))
		s.apply(m.fn(s.machine))

	case load:
		if err := scene.Validate(m.st); err != nil {
			s.logger.Warn("imported setup has integrity problems", zap.Error(err))
		}
		s.apply(s.machine.Load(m.st))

	case getView:
		m.reply <- s.view()

	case getState:
		m.reply <- s.scene.State()
	}
}

func (s *Session) frame() {
	s.frameDue = false
	s.apply(s.machine.Frame())
}

// apply carries out machine effects in order: at most one redraw, then
// the broadcasts the mutation asked for.
func (s *Session) apply(effects []interaction.Effect) {
	redraw := false
	for _, e := range effects {
		switch e := e.(type) {
		case interaction.Render:
			redraw = true
		case interaction.Sync:
			s.engine.Broadcast()
		case interaction.Ping:
			s.engine.Ping(e.Action, e.ItemType)
		}
	}
	if redraw {
		s.renderScene()
	}
}

func (s *Session) renderScene() {
	s.renderer.RenderScene(s.sceneView())
}

func (s *Session) renderRoster() {
	s.renderer.RenderRoster(s.rosterView())
}

func (s *Session) sceneView() SceneView {
	st := s.scene.State()
	return SceneView{
		Items:       st.Items,
		Connections: s.scene.Resolved(),
		Interaction: s.machine.State(),
	}
}

func (s *Session) rosterView() RosterView {
	return RosterView{Entries: s.tracker.Render(), Badges: s.tracker.Badges()}
}

func (s *Session) view() View {
	return View{
		Session:   s.info,
		Lifecycle: s.lifecycle,
		Scene:     s.sceneView(),
		Roster:    s.rosterView(),
	}
}

func (s *Session) setLifecycle(l Lifecycle) {
	if s.lifecycle == l {
		return
	}
	s.logger.Info("session state", zap.Stringer("from", s.lifecycle), zap.Stringer("to", l))
	s.lifecycle = l
	s.status.OnStatus(l)
}

func (s *Session) teardown() error {
	var err error
	if s.conn != nil {
		err = multierr.Append(err, s.conn.Close())
	}
	s.tracker.Close()
	s.setLifecycle(TornDown)
	return err
}

// rosterChanged may run on any goroutine; it only flags a redraw.
func (s *Session) rosterChanged() {
	select {
	case s.rosterCh <- struct{}{}:
	default:
	}
}

func (s *Session) post(m msg) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) SetCanvas(c interaction.Canvas) { s.post(setCanvas{c}) }

func (s *Session) PointerDown(p interaction.Pointer) { s.post(pointerDown{p}) }

func (s *Session) PointerMove(p interaction.Pointer) { s.post(pointerMove{p}) }

func (s *Session) PointerUp(p interaction.Pointer) { s.post(pointerUp{p}) }

func (s *Session) SelectTool(tool string) {
	s.post(edit{"select_tool", func(m *interaction.Machine) []interaction.Effect { return m.SelectTool(tool) }})
}

func (s *Session) StartConnecting() {
	s.post(edit{"start_connecting", (*interaction.Machine).StartConnecting})
}

func (s *Session) CancelConnecting() {
	s.post(edit{"cancel_connecting", (*interaction.Machine).CancelConnecting})
}

func (s *Session) Deselect() {
	s.post(edit{"deselect", (*interaction.Machine).Deselect})
}

func (s *Session) Rotate() {
	s.post(edit{"rotate", (*interaction.Machine).Rotate})
}

func (s *Session) Delete() {
	s.post(edit{"delete", (*interaction.Machine).Delete})
}

func (s *Session) SetLabel(label string) {
	s.post(edit{"set_label", func(m *interaction.Machine) []interaction.Effect { return m.SetLabel(label) }})
}

func (s *Session) SetConnectionType(id int64, style types.ConnectionStyle) {
	s.post(edit{"set_connection_type", func(m *interaction.Machine) []interaction.Effect {
		return m.SetConnectionStyle(id, style)
	}})
}

func (s *Session) RemoveConnection(id int64) {
	s.post(edit{"remove_connection", func(m *interaction.Machine) []interaction.Effect {
		return m.RemoveConnection(id)
	}})
}

func (s *Session) Clear() {
	s.post(edit{"clear", (*interaction.Machine).Clear})
}

// Load replaces the scene with st and broadcasts it once.
func (s *Session) Load(st types.State) error {
	if !s.post(load{st.Clone()}) {
		return ErrClosed
	}
	return nil
}

// Import reads a setup file and loads it. A file that cannot be parsed
// leaves the scene untouched and is reported through the Notifier.
func (s *Session) Import(r io.Reader) error {
	st, err := scene.Import(r)
	if err != nil {
		s.logger.Warn("import rejected", zap.Error(err))
		s.notifier.Notify(Notice{Level: NoticeError, Text: "Could not load setup: " + err.Error()})
		return err
	}
	return s.Load(st)
}

// Export writes the current scene, dangling connections included, as a
// setup file.
func (s *Session) Export(ctx context.Context, w io.Writer) error {
	reply := make(chan types.State, 1)
	if !s.post(getState{reply}) {
		return ErrClosed
	}
	select {
	case st := <-reply:
		return scene.Export(w, st, s.clock.Now())
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns a consistent snapshot taken on the loop.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !s.post(getView{reply}) {
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// listener adapts connmgr callbacks onto the loop.
type listener struct{ s *Session }

func (l listener) OnOpen()               { l.s.post(opened{}) }
func (l listener) OnMessage(data []byte) { l.s.post(inbound{data}) }
func (l listener) OnClose(err error)     { l.s.post(closed{err}) }

type joinToast struct{ s *Session }

func (j joinToast) PeerJoined(p types.Participant) {
	j.s.notifier.Notify(Notice{Level: NoticeInfo, Text: p.Username + " joined"})
}
