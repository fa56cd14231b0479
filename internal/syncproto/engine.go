// Package syncproto turns local scene changes into outbound frames and
// applies inbound frames to the scene and the roster.
//
// There is no versioning: every state_update carries the whole scene and
// the last one applied wins.
package syncproto

import (
	"fmt"

	"github.com/DoyleJ11/lab-whiteboard/internal/scene"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Sender is the outbound side of the channel. Send never reports failure.
type Sender interface {
	Send(msg types.ClientMessage)
}

// Roster is the presence side of inbound frames.
type Roster interface {
	SetRoster(users []types.Participant)
	Add(p types.Participant)
	Remove(userID string)
	MarkActive(a types.Activity)
}

// JoinNotifier is told about peers arriving, for the "X joined" toast.
type JoinNotifier interface {
	PeerJoined(p types.Participant)
}

// Identity is who this client announces itself as.
type Identity struct {
	UserID   string
	Username string
	Color    string
}

// Result says what an inbound frame touched.
type Result struct {
	Kind          types.Kind
	SceneReplaced bool
	RosterChanged bool
}

type Stats struct {
	Sent      int
	Applied   int
	Discarded int
}

type Engine struct {
	self     Identity
	scene    *scene.Scene
	roster   Roster
	sender   Sender
	notifier JoinNotifier
	clock    clockwork.Clock
	logger   *zap.Logger
	stats    Stats
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithNotifier(n JoinNotifier) Option { return func(e *Engine) { e.notifier = n } }

func New(self Identity, sc *scene.Scene, roster Roster, sender Sender, opts ...Option) *Engine {
	e := &Engine{
		self:   self,
		scene:  sc,
		roster: roster,
		sender: sender,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSender swaps the outbound side. The session wires the connection
// manager in after both exist.
func (e *Engine) SetSender(s Sender) { e.sender = s }

func (e *Engine) Stats() Stats { return e.stats }

// JoinMessage is the greeting written on every fresh channel.
func (e *Engine) JoinMessage() types.ClientMessage {
	return types.Join{
		Username: e.self.Username,
		UserID:   e.self.UserID,
		Color:    e.self.Color,
	}
}

// Broadcast sends the entire current scene.
func (e *Engine) Broadcast() {
	e.send(types.StateUpdate{State: e.scene.State()})
}

// Ping announces a transient activity, stamped with the current time.
func (e *Engine) Ping(action, itemType string) {
	e.send(types.Activity{
		UserID:    e.self.UserID,
		Username:  e.self.Username,
		Color:     e.self.Color,
		Action:    action,
		ItemType:  itemType,
		Timestamp: e.clock.Now().UnixMilli(),
	})
}

func (e *Engine) send(msg types.ClientMessage) {
	if e.sender == nil {
		return
	}
	e.sender.Send(msg)
	e.stats.Sent++
}

// Handle applies one inbound frame. A frame that cannot be decoded, or a
// state_update missing either array, is logged and discarded; the scene
// keeps the last state applied.
func (e *Engine) Handle(data []byte) (Result, error) {
	msg, err := types.DecodeServer(data)
	if err != nil {
		e.stats.Discarded++
		e.logger.Warn("discarding inbound frame", zap.Error(err), zap.Int("bytes", len(data)))
		return Result{}, err
	}
	return e.Apply(msg)
}

func (e *Engine) Apply(msg types.ServerMessage) (Result, error) {
	res := Result{Kind: msg.Kind()}

	switch m := msg.(type) {
	case types.UsersList:
		e.roster.SetRoster(m.Users)
		res.RosterChanged = true
	case types.UserJoined:
		e.roster.Add(m.User)
		res.RosterChanged = true
		if e.notifier != nil && m.User.UserID != e.self.UserID {
			e.notifier.PeerJoined(m.User)
		}
	case types.UserLeft:
		e.roster.Remove(m.UserID)
		res.RosterChanged = true
	case types.StateUpdate:
		e.scene.Replace(m.State)
		res.SceneReplaced = true
		if dangling := e.scene.Dangling(); len(dangling) > 0 {
			e.logger.Debug("state has dangling connections", zap.Int("count", len(dangling)))
		}
	case types.Activity:
		e.roster.MarkActive(m)
	default:
		e.stats.Discarded++
		return Result{}, fmt.Errorf("%w: %T", types.ErrUnknownKind, msg)
	}

	e.stats.Applied++
	e.logger.Debug("applied inbound frame", zap.String("type", string(res.Kind)))
	return res, nil
}
