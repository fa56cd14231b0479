package room

import "github.com/DoyleJ11/lab-whiteboard/pkg/types"

type Msg interface{ isRoomMsg() }

// Attach registers a freshly accepted connection. The participant is
// only known once its join frame arrives.
type Attach struct {
	ClientID string
	Outbox   chan types.ServerMessage
}

func (Attach) isRoomMsg() {}

type FromClient struct {
	ClientID string
	Msg      types.ClientMessage
}

func (FromClient) isRoomMsg() {}

// FromRelay is a frame another hub instance produced for this room.
type FromRelay struct {
	Msg types.ServerMessage
}

func (FromRelay) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Version    int
	NumClients int
	Users      []types.Participant
	State      types.State
}
