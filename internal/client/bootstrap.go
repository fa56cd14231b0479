package client

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

// RoomAPI is the REST side of the hub (see roomapi.Client).
type RoomAPI interface {
	CreateRoom(ctx context.Context, name string) (string, error)
	JoinRoom(ctx context.Context, roomID, username string) (types.JoinRoomResponse, error)
}

// Bootstrap joins an existing room and returns the session record plus
// the scene to seed it with.
func Bootstrap(ctx context.Context, api RoomAPI, roomID, username, defaultColor string) (types.Session, types.State, error) {
	resp, err := api.JoinRoom(ctx, roomID, username)
	if err != nil {
		return types.Session{}, types.State{}, fmt.Errorf("join room %s: %w", roomID, err)
	}

	sess := types.Session{
		RoomID:    roomID,
		UserID:    resp.UserID,
		Username:  username,
		UserColor: resp.UserColor,
	}
	if sess.UserColor == "" {
		sess.UserColor = defaultColor
	}

	st := types.EmptyState()
	if resp.RoomState != nil {
		st = *resp.RoomState
		if st.Items == nil {
			st.Items = []types.Item{}
		}
		if st.Connections == nil {
			st.Connections = []types.Connection{}
		}
	}
	return sess, st, nil
}

// CreateAndJoin creates a room and joins it as its creator.
func CreateAndJoin(ctx context.Context, api RoomAPI, roomName, username, defaultColor string) (types.Session, types.State, error) {
	roomID, err := api.CreateRoom(ctx, roomName)
	if err != nil {
		return types.Session{}, types.State{}, fmt.Errorf("create room: %w", err)
	}
	sess, st, err := Bootstrap(ctx, api, roomID, username, defaultColor)
	if err != nil {
		return types.Session{}, types.State{}, err
	}
	sess.IsCreator = true
	return sess, st, nil
}
