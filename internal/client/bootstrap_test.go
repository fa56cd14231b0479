package client

import (
	"context"
	"errors"
	"testing"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	roomID string
	join   types.JoinRoomResponse
	err    error
}

func (s stubAPI) CreateRoom(context.Context, string) (string, error) { return s.roomID, s.err }

func (s stubAPI) JoinRoom(context.Context, string, string) (types.JoinRoomResponse, error) {
	return s.join, s.err
}

func TestBootstrap_DefaultsColorAndEmptyState(t *testing.T) {
	api := stubAPI{join: types.JoinRoomResponse{Success: true, UserID: "u9"}}

	sess, st, err := Bootstrap(context.Background(), api, "AB12CD", "Ada", "#2563eb")
	require.NoError(t, err)
	assert.Equal(t, types.Session{RoomID: "AB12CD", UserID: "u9", Username: "Ada", UserColor: "#2563eb"}, sess)
	assert.Equal(t, types.EmptyState(), st)
}

func TestBootstrap_SeedsRoomState(t *testing.T) {
	room := types.State{Items: []types.Item{{ID: 1, Type: "spatel", Scale: 1}}}
	api := stubAPI{join: types.JoinRoomResponse{Success: true, UserID: "u9", UserColor: "#16a34a", RoomState: &room}}

	sess, st, err := Bootstrap(context.Background(), api, "AB12CD", "Ada", "#2563eb")
	require.NoError(t, err)
	assert.Equal(t, "#16a34a", sess.UserColor)
	assert.Len(t, st.Items, 1)
	assert.NotNil(t, st.Connections)
}

func TestCreateAndJoin_MarksCreator(t *testing.T) {
	api := stubAPI{roomID: "NEW123", join: types.JoinRoomResponse{Success: true, UserID: "u1"}}

	sess, _, err := CreateAndJoin(context.Background(), api, "Chemie", "Ada", "#2563eb")
	require.NoError(t, err)
	assert.True(t, sess.IsCreator)
	assert.Equal(t, "NEW123", sess.RoomID)
}

func TestBootstrap_PropagatesFailure(t *testing.T) {
	boom := errors.New("room not found")
	_, _, err := Bootstrap(context.Background(), stubAPI{err: boom}, "NOPE00", "Ada", "#2563eb")
	assert.ErrorIs(t, err, boom)
}
