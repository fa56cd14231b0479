// Package store persists rooms and their last known scene.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrRoomExists = errors.New("room already exists")

type Room struct {
	ID        string
	Name      string
	State     types.State
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	CreateRoom(ctx context.Context, id, name string) error
	GetRoom(ctx context.Context, id string) (Room, error)
	// SaveState overwrites the room's scene. Unknown rooms are created.
	SaveState(ctx context.Context, id string, st types.State) error
	Close() error
}

type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Room
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room), now: time.Now}
}

func (m *Memory) CreateRoom(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return ErrRoomExists
	}
	now := m.now()
	m.rooms[id] = Room{ID: id, Name: name, State: types.EmptyState(), CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *Memory) GetRoom(_ context.Context, id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	r.State = r.State.Clone()
	return r, nil
}

func (m *Memory) SaveState(_ context.Context, id string, st types.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	r, ok := m.rooms[id]
	if !ok {
		r = Room{ID: id, CreatedAt: now}
	}
	r.State = st.Clone()
	r.UpdatedAt = now
	m.rooms[id] = r
	return nil
}

func (m *Memory) Close() error { return nil }
