package types

// ConnectionStyle is how a connection line is drawn.
type ConnectionStyle string

const (
	StyleSolid  ConnectionStyle = "solid"
	StyleDashed ConnectionStyle = "dashed"
)

// Item is one placed piece of equipment. X and Y are fractions of the
// canvas size so geometry survives different screen resolutions.
type Item struct {
	ID       int64   `json:"id"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation int     `json:"rotation"`
	Scale    float64 `json:"scale"`
	Label    string  `json:"label"`
}

// Connection links two items by id. It does not own either end.
type Connection struct {
	ID   int64           `json:"id"`
	From int64           `json:"from"`
	To   int64           `json:"to"`
	Type ConnectionStyle `json:"type"`
}

// State is a full scene snapshot as it travels over the wire and is
// stored by the hub.
type State struct {
	Items       []Item       `json:"items"`
	Connections []Connection `json:"connections"`
}

// EmptyState returns a snapshot whose slices marshal as [] rather than null.
func EmptyState() State {
	return State{Items: []Item{}, Connections: []Connection{}}
}

// Clone returns a deep copy; the slices never alias the receiver's.
func (s State) Clone() State {
	out := State{
		Items:       make([]Item, len(s.Items)),
		Connections: make([]Connection, len(s.Connections)),
	}
	copy(out.Items, s.Items)
	copy(out.Connections, s.Connections)
	return out
}

type Participant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	// IsSelf is derived locally and never sent.
	IsSelf bool `json:"-"`
}
