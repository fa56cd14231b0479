package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateRoom(ctx, "AB12CD", "Chemie 10b"))
	assert.ErrorIs(t, m.CreateRoom(ctx, "AB12CD", "again"), ErrRoomExists)

	r, err := m.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, "Chemie 10b", r.Name)
	assert.Equal(t, types.EmptyState(), r.State)

	st := types.State{
		Items:       []types.Item{{ID: 1, Type: "becherglas", X: 0.5, Y: 0.5, Scale: 1}},
		Connections: []types.Connection{},
	}
	require.NoError(t, m.SaveState(ctx, "AB12CD", st))

	r, err = m.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, st, r.State)

	// returned state is detached
	r.State.Items[0].X = 0.9
	again, err := m.GetRoom(ctx, "AB12CD")
	require.NoError(t, err)
	assert.Equal(t, 0.5, again.State.Items[0].X)
}

func TestMemory_NotFound(t *testing.T) {
	_, err := NewMemory().GetRoom(context.Background(), "NOPE00")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemory_SaveCreatesLazily(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveState(ctx, "LAZY01", types.EmptyState()))
	_, err := m.GetRoom(ctx, "LAZY01")
	assert.NoError(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestStateBlob(t *testing.T) {
	blob, err := encodeState(types.State{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"connections":[]}`, string(blob))

	st, err := decodeState(nil)
	require.NoError(t, err)
	assert.Equal(t, types.EmptyState(), st)

	st, err = decodeState([]byte(`{"items":null}`))
	require.NoError(t, err)
	assert.Equal(t, types.EmptyState(), st)

	_, err = decodeState([]byte(`nope`))
	assert.Error(t, err)
}
