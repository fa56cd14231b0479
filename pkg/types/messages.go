package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Hub
// join:
//   username, user_id, color
//
// state_update:
//   state: { items: Item[], connections: Connection[] }
//
// activity (transient):
//   user_id, username, color, action, item_type, timestamp (unix ms)

// Hub -> Client
// users_list:
//   users: Participant[]
//
// user_joined:
//   user: Participant
//
// user_left:
//   user_id
//
// state_update, activity: same shape as above, relayed from another client.

var ErrMalformed = errors.New("malformed message")
var ErrUnknownKind = errors.New("unknown message type")
var ErrIncompleteState = errors.New("state_update without items and connections")

type Kind string

const (
	KindJoin        Kind = "join"
	KindStateUpdate Kind = "state_update"
	KindActivity    Kind = "activity"
	KindUsersList   Kind = "users_list"
	KindUserJoined  Kind = "user_joined"
	KindUserLeft    Kind = "user_left"
)

type Message interface {
	Kind() Kind
}

// ClientMessage is the closed set of messages a client sends to the hub.
type ClientMessage interface {
	Message
	isClientMsg()
}

// ServerMessage is the closed set of messages the hub sends to a client.
type ServerMessage interface {
	Message
	isServerMsg()
}

type Join struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Color    string `json:"color"`
}

type StateUpdate struct {
	State State `json:"state"`
}

type Activity struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Color     string `json:"color"`
	Action    string `json:"action"`
	ItemType  string `json:"item_type"`
	Timestamp int64  `json:"timestamp"`
}

type UsersList struct {
	Users []Participant `json:"users"`
}

type UserJoined struct {
	User Participant `json:"user"`
}

type UserLeft struct {
	UserID string `json:"user_id"`
}

func (Join) Kind() Kind        { return KindJoin }
func (StateUpdate) Kind() Kind { return KindStateUpdate }
func (Activity) Kind() Kind    { return KindActivity }
func (UsersList) Kind() Kind   { return KindUsersList }
func (UserJoined) Kind() Kind  { return KindUserJoined }
func (UserLeft) Kind() Kind    { return KindUserLeft }

func (Join) isClientMsg()        {}
func (StateUpdate) isClientMsg() {}
func (Activity) isClientMsg()    {}

func (StateUpdate) isServerMsg() {}
func (Activity) isServerMsg()    {}
func (UsersList) isServerMsg()   {}
func (UserJoined) isServerMsg()  {}
func (UserLeft) isServerMsg()    {}

type envelope struct {
	Type Kind `json:"type"`
}

// Encode writes m as a flat JSON object carrying its "type" tag.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Join:
		return json.Marshal(struct {
			envelope
			Join
		}{envelope{KindJoin}, msg})
	case StateUpdate:
		msg.State = normalize(msg.State)
		return json.Marshal(struct {
			envelope
			StateUpdate
		}{envelope{KindStateUpdate}, msg})
	case Activity:
		return json.Marshal(struct {
			envelope
			Activity
		}{envelope{KindActivity}, msg})
	case UsersList:
		if msg.Users == nil {
			msg.Users = []Participant{}
		}
		return json.Marshal(struct {
			envelope
			UsersList
		}{envelope{KindUsersList}, msg})
	case UserJoined:
		return json.Marshal(struct {
			envelope
			UserJoined
		}{envelope{KindUserJoined}, msg})
	case UserLeft:
		return json.Marshal(struct {
			envelope
			UserLeft
		}{envelope{KindUserLeft}, msg})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
}

// DecodeServer parses a hub -> client frame.
func DecodeServer(data []byte) (ServerMessage, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindUsersList:
		var msg UsersList
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	case KindUserJoined:
		var msg UserJoined
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	case KindUserLeft:
		var msg UserLeft
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	case KindStateUpdate:
		return decodeStateUpdate(data)
	case KindActivity:
		var msg Activity
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// DecodeClient parses a client -> hub frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindJoin:
		var msg Join
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	case KindStateUpdate:
		return decodeStateUpdate(data)
	case KindActivity:
		var msg Activity
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func peekKind(data []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// decodeStateUpdate only accepts a state carrying both arrays, even empty
// ones. A missing or null field means the sender had no complete scene.
func decodeStateUpdate(data []byte) (StateUpdate, error) {
	var raw struct {
		State *struct {
			Items       *[]Item       `json:"items"`
			Connections *[]Connection `json:"connections"`
		} `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return StateUpdate{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.State == nil || raw.State.Items == nil || raw.State.Connections == nil {
		return StateUpdate{}, ErrIncompleteState
	}
	return StateUpdate{State: normalize(State{
		Items:       *raw.State.Items,
		Connections: *raw.State.Connections,
	})}, nil
}

func normalize(s State) State {
	if s.Items == nil {
		s.Items = []Item{}
	}
	if s.Connections == nil {
		s.Connections = []Connection{}
	}
	return s
}
