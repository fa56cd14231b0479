// Package hub is the registry of live rooms.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/relay"
	"github.com/DoyleJ11/lab-whiteboard/internal/room"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"go.uber.org/zap"
)

var ErrShuttingDown = errors.New("hub shutting down")

const loadTimeout = 3 * time.Second

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom returns the live room, starting it from the stored scene
// when needed. Rooms nobody created over REST start empty, so a bare
// websocket connect is enough to open one.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

// RemoveRoom unregisters Room if it is still the one mapped to ID.
type RemoveRoom struct {
	ID   string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	store  store.Store
	relay  relay.Relay
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Hub)

func WithStore(s store.Store) Option { return func(h *Hub) { h.store = s } }

func WithRelay(r relay.Relay) Option { return func(h *Hub) { h.relay = r } }

func WithLogger(l *zap.Logger) Option { return func(h *Hub) { h.logger = l } }

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		store:  store.NewMemory(),
		relay:  relay.Noop{},
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Store() store.Store { return h.store }

// Ensure is the blocking form of EnsureRoom.
func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.post(ctx, EnsureRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Lookup returns the live room or nil.
func (h *Hub) Lookup(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.post(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Rooms lists the ids of the live rooms.
func (h *Hub) Rooms(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.post(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-h.ctx.Done():
		return nil, ErrShuttingDown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every room and waits for the hub loop to exit.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.ctx.Done()
}

func (h *Hub) post(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *room.Room) (*room.Room, error) {
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.ctx.Done():
		return nil, ErrShuttingDown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case EnsureRoom:
				// A room that is stopping is replaced; its RemoveRoom may
				// still be on the way.
				if rm := h.rooms[msg.ID]; rm != nil && !rm.Stopping() {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.ID, h.load(msg.ID),
					room.WithStore(h.store),
					room.WithRelay(h.relay),
					room.WithLogger(h.logger),
					room.WithOnEmpty(h.onEmpty),
				)
				h.rooms[msg.ID] = rm
				h.logger.Info("room started", zap.String("room_id", msg.ID), zap.Int("rooms", len(h.rooms)))
				msg.Reply <- rm

			case RemoveRoom:
				if h.rooms[msg.ID] == msg.Room {
					delete(h.rooms, msg.ID)
					h.logger.Info("room stopped", zap.String("room_id", msg.ID), zap.Int("rooms", len(h.rooms)))
				}

			case ListRooms:
				ids := make([]string, 0, len(h.rooms))
				for id := range h.rooms {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// onEmpty runs on the room's goroutine; it must not block on the hub loop.
func (h *Hub) onEmpty(rm *room.Room) {
	go func() {
		_ = h.post(context.Background(), RemoveRoom{ID: rm.ID(), Room: rm})
	}()
}

func (h *Hub) load(id string) types.State {
	ctx, cancel := context.WithTimeout(h.ctx, loadTimeout)
	defer cancel()
	r, err := h.store.GetRoom(ctx, id)
	if errors.Is(err, store.ErrRoomNotFound) {
		return types.EmptyState()
	}
	if err != nil {
		h.logger.Error("load room failed, starting empty", zap.String("room_id", id), zap.Error(err))
		return types.EmptyState()
	}
	return r.State
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		rm.Post(context.Background(), room.Shutdown{})
		delete(h.rooms, id)
	}
	h.cancel()
}
