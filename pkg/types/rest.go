package types

// POST /api/room/create
type CreateRoomRequest struct {
	RoomName string `json:"room_name"`
}

type CreateRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"room_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// POST /api/room/join
type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// JoinRoomResponse carries the stored scene, if the room has one, so a
// late joiner can draw before the first relayed state_update.
type JoinRoomResponse struct {
	Success   bool   `json:"success"`
	UserID    string `json:"user_id,omitempty"`
	UserColor string `json:"user_color,omitempty"`
	RoomState *State `json:"room_state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Session is this client's identity in a room. It does not change after
// the join.
type Session struct {
	RoomID    string
	UserID    string
	Username  string
	IsCreator bool
	UserColor string
}

func (s Session) Participant() Participant {
	return Participant{UserID: s.UserID, Username: s.Username, Color: s.UserColor, IsSelf: true}
}
