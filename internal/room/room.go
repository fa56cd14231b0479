// Package room is the per-room actor of the hub: it tracks who is
// connected, keeps the last scene and relays frames between clients.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/relay"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"go.uber.org/zap"
)

const persistTimeout = 2 * time.Second

type member struct {
	outbox chan types.ServerMessage
	user   *types.Participant
}

type Room struct {
	id      string
	inbox   chan Msg
	state   types.State
	version int
	members map[string]*member
	order   []string
	used    bool

	// Participants connected through other hub instances, learned from
	// the relay.
	remote      map[string]types.Participant
	remoteOrder []string

	// mu orders Attach against the room deciding to stop.
	mu       sync.Mutex
	stopping bool

	store   store.Store
	relay   relay.Relay
	logger  *zap.Logger
	onEmpty func(*Room)
	unsub   func()

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Room)

func WithStore(s store.Store) Option { return func(r *Room) { r.store = s } }

func WithRelay(rl relay.Relay) Option { return func(r *Room) { r.relay = rl } }

func WithLogger(l *zap.Logger) Option { return func(r *Room) { r.logger = l } }

// WithOnEmpty is called from the room loop when the last client leaves.
// The room shuts itself down right after.
func WithOnEmpty(fn func(*Room)) Option { return func(r *Room) { r.onEmpty = fn } }

func New(parent context.Context, id string, initial types.State, opts ...Option) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		state:   initial.Clone(),
		members: make(map[string]*member),
		remote:  make(map[string]types.Participant),
		relay:   relay.Noop{},
		logger:  zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("room_id", id))

	unsub, err := r.relay.Subscribe(ctx, id, func(m types.ServerMessage) {
		r.Post(ctx, FromRelay{Msg: m})
	})
	if err != nil {
		r.logger.Warn("relay subscribe failed, room is local only", zap.Error(err))
		unsub = func() {}
	}
	r.unsub = unsub

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the mailbox to tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room stops accepting messages.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Attach registers a connection with the room. It reports false once the
// room has started to stop; the caller should look the room up again.
func (r *Room) Attach(clientID string, out chan types.ServerMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping || r.ctx.Err() != nil {
		return false
	}
	select {
	case r.inbox <- Attach{ClientID: clientID, Outbox: out}:
		return true
	default:
		return false
	}
}

// Stopping reports whether the room refuses new connections.
func (r *Room) Stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping || r.ctx.Err() != nil
}

// Post delivers m unless the room has stopped or ctx ends first.
func (r *Room) Post(ctx context.Context, m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Snapshot asks the loop for a consistent view.
func (r *Room) Snapshot(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	if !r.Post(ctx, GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.ctx.Done():
		return View{}, false
	case <-ctx.Done():
		return View{}, false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Attach:
				r.members[msg.ClientID] = &member{outbox: msg.Outbox}
				r.order = append(r.order, msg.ClientID)
				r.used = true
				r.logger.Debug("client attached", zap.String("client_id", msg.ClientID), zap.Int("clients", len(r.members)))

			case FromClient:
				r.handleClient(msg)

			case FromRelay:
				r.handleRelay(msg.Msg)

			case Leave:
				r.leave(msg.ClientID)

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.members),
					Users:      r.users(),
					State:      r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}

			if r.used && len(r.members) == 0 && r.retire() {
				r.logger.Info("room empty")
				if r.onEmpty != nil {
					r.onEmpty(r)
				}
				r.shutdown()
				return
			}
		}
	}
}

// retire stops accepting attachments unless messages are still queued;
// those may carry a connection that raced the last leave.
func (r *Room) retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inbox) > 0 {
		return false
	}
	r.stopping = true
	return true
}

func (r *Room) handleClient(msg FromClient) {
	m := r.members[msg.ClientID]
	if m == nil {
		return
	}

	switch cm := msg.Msg.(type) {
	case types.Join:
		p := types.Participant{UserID: cm.UserID, Username: cm.Username, Color: cm.Color}
		m.user = &p
		r.logger.Info("user joined", zap.String("user_id", p.UserID), zap.String("username", p.Username))
		if !r.trySend(msg.ClientID, types.UsersList{Users: r.users()}) {
			m.user = nil // never announced, so no user_left either
			r.logger.Warn("dropping slow client", zap.String("client_id", msg.ClientID))
			r.leave(msg.ClientID)
			return
		}
		r.publish(msg.ClientID, types.UserJoined{User: p})

	case types.StateUpdate:
		r.state = cm.State.Clone()
		r.version++
		r.persist()
		r.publish(msg.ClientID, types.StateUpdate{State: r.state.Clone()})

	case types.Activity:
		r.publish(msg.ClientID, cm)
	}
}

func (r *Room) handleRelay(m types.ServerMessage) {
	switch msg := m.(type) {
	case types.StateUpdate:
		r.state = msg.State.Clone()
		r.version++
		r.broadcast("", msg)

	case types.Activity:
		r.broadcast("", msg)

	case types.UserJoined:
		// The newcomer's instance has not seen our users yet.
		if local := r.localUsers(); len(local) > 0 {
			r.relayPublish(types.UsersList{Users: local})
		}
		if r.learn(msg.User) {
			r.broadcast("", msg)
		}

	case types.UsersList:
		for _, u := range msg.Users {
			if r.learn(u) {
				r.broadcast("", types.UserJoined{User: u})
			}
		}

	case types.UserLeft:
		if !r.forget(msg.UserID) {
			return
		}
		if local := r.localUser(msg.UserID); local != nil {
			// Still here; tell the other instances so they keep the user.
			r.relayPublish(types.UsersList{Users: []types.Participant{*local}})
			return
		}
		r.broadcast("", msg)
	}
}

// learn records a participant of another instance. It reports whether the
// user is new to this room.
func (r *Room) learn(p types.Participant) bool {
	if _, ok := r.remote[p.UserID]; ok {
		r.remote[p.UserID] = p
		return false
	}
	r.remote[p.UserID] = p
	r.remoteOrder = append(r.remoteOrder, p.UserID)
	return !r.hasUser(p.UserID)
}

func (r *Room) forget(userID string) bool {
	if _, ok := r.remote[userID]; !ok {
		return false
	}
	delete(r.remote, userID)
	for i, id := range r.remoteOrder {
		if id == userID {
			r.remoteOrder = append(r.remoteOrder[:i], r.remoteOrder[i+1:]...)
			break
		}
	}
	return true
}

// leave drops the client. user_left goes out only when no other
// connection still carries the same user.
func (r *Room) leave(clientID string) {
	m := r.members[clientID]
	if m == nil {
		return
	}
	delete(r.members, clientID)
	r.removeOrder(clientID)
	close(m.outbox)

	if m.user == nil || r.hasUser(m.user.UserID) {
		return
	}
	if _, elsewhere := r.remote[m.user.UserID]; elsewhere {
		r.relayPublish(types.UserLeft{UserID: m.user.UserID})
		return
	}
	r.logger.Info("user left", zap.String("user_id", m.user.UserID))
	r.publish("", types.UserLeft{UserID: m.user.UserID})
}

// publish delivers to every local client except skip and hands the frame
// to the relay.
func (r *Room) publish(skip string, msg types.ServerMessage) {
	r.broadcast(skip, msg)
	r.relayPublish(msg)
}

func (r *Room) relayPublish(msg types.ServerMessage) {
	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	defer cancel()
	if err := r.relay.Publish(ctx, r.id, msg); err != nil {
		r.logger.Warn("relay publish failed", zap.String("type", string(msg.Kind())), zap.Error(err))
	}
}

// broadcast reaches joined clients only; a connection gets nothing before
// its own users_list.
func (r *Room) broadcast(skip string, msg types.ServerMessage) {
	var slow []string
	for _, id := range r.order {
		if m := r.members[id]; id == skip || m == nil || m.user == nil {
			continue
		}
		if !r.trySend(id, msg) {
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		r.logger.Warn("dropping slow client", zap.String("client_id", id))
		r.leave(id)
	}
}

func (r *Room) trySend(clientID string, msg types.ServerMessage) bool {
	m := r.members[clientID]
	if m == nil {
		return true
	}
	select {
	case m.outbox <- msg:
		return true
	default:
		return false
	}
}

func (r *Room) persist() {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	defer cancel()
	if err := r.store.SaveState(ctx, r.id, r.state); err != nil {
		r.logger.Error("persist state failed", zap.Int("version", r.version), zap.Error(err))
	}
}

// users lists local participants in attach order followed by those on
// other instances, one entry per user.
func (r *Room) users() []types.Participant {
	out := r.localUsers()
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		seen[p.UserID] = true
	}
	for _, id := range r.remoteOrder {
		if !seen[id] {
			seen[id] = true
			out = append(out, r.remote[id])
		}
	}
	return out
}

func (r *Room) localUsers() []types.Participant {
	out := make([]types.Participant, 0, len(r.members))
	seen := make(map[string]bool, len(r.members))
	for _, id := range r.order {
		m := r.members[id]
		if m == nil || m.user == nil || seen[m.user.UserID] {
			continue
		}
		seen[m.user.UserID] = true
		out = append(out, *m.user)
	}
	return out
}

func (r *Room) hasUser(userID string) bool {
	return r.localUser(userID) != nil
}

func (r *Room) localUser(userID string) *types.Participant {
	for _, m := range r.members {
		if m.user != nil && m.user.UserID == userID {
			return m.user
		}
	}
	return nil
}

func (r *Room) removeOrder(clientID string) {
	for i, id := range r.order {
		if id == clientID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Room) shutdown() {
	r.cancel()
	// Taking the lock waits out an Attach in flight, so the drain below
	// sees every attachment that was accepted.
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
	r.unsub()
	for id, m := range r.members {
		close(m.outbox) // no more frames for this client
		delete(r.members, id)
	}
	r.order = nil

	// Attachments that raced the shutdown still need their outbox closed.
	for {
		select {
		case m := <-r.inbox:
			if a, ok := m.(Attach); ok {
				close(a.Outbox)
			}
		default:
			return
		}
	}
}
