package scene

import (
	"errors"
	"math"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

var ErrItemNotFound = errors.New("item not found")
var ErrConnectionNotFound = errors.New("connection not found")
var ErrSelfConnection = errors.New("connection must join two different items")
var ErrDuplicateID = errors.New("duplicate id")
var ErrInvalidStyle = errors.New("invalid connection style")

const (
	MinScale     = 0.5
	MaxScale     = 3.0
	DefaultScale = 1.0
	RotationStep = 90
)

// Scene holds the placed items and the connections between them. It is
// not safe for concurrent use; the client session owns it from a single
// goroutine.
type Scene struct {
	items       []types.Item
	connections []types.Connection
}

func New() *Scene {
	return &Scene{
		items:       []types.Item{},
		connections: []types.Connection{},
	}
}

// FromState builds a scene from a snapshot without checking integrity;
// dangling connections are kept and skipped by Resolved.
func FromState(st types.State) *Scene {
	s := New()
	s.Replace(st)
	return s
}

// Replace swaps the whole scene for st. This is the only way inbound
// state enters the scene.
func (s *Scene) Replace(st types.State) {
	c := st.Clone()
	s.items = c.Items
	s.connections = c.Connections
}

// State returns a deep copy of the current scene.
func (s *Scene) State() types.State {
	return types.State{Items: s.items, Connections: s.connections}.Clone()
}

func (s *Scene) Len() int { return len(s.items) }

func (s *Scene) Item(id int64) (types.Item, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, false
	}
	return s.items[i], true
}

func (s *Scene) Connection(id int64) (types.Connection, bool) {
	for _, c := range s.connections {
		if c.ID == id {
			return c, true
		}
	}
	return types.Connection{}, false
}

// Place appends a new item. Position and scale are clamped into range and
// rotation is snapped to a quarter turn.
func (s *Scene) Place(it types.Item) error {
	if s.indexOf(it.ID) >= 0 {
		return ErrDuplicateID
	}
	it.X = Clamp01(it.X)
	it.Y = Clamp01(it.Y)
	if it.Scale == 0 {
		it.Scale = DefaultScale
	}
	it.Scale = ClampScale(it.Scale)
	it.Rotation = normalizeRotation(it.Rotation)
	s.items = append(s.items, it)
	return nil
}

// Move sets the item origin, clamped to the unit square.
func (s *Scene) Move(id int64, x, y float64) (types.Item, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, ErrItemNotFound
	}
	s.items[i].X = Clamp01(x)
	s.items[i].Y = Clamp01(y)
	return s.items[i], nil
}

func (s *Scene) Resize(id int64, scale float64) (types.Item, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, ErrItemNotFound
	}
	s.items[i].Scale = ClampScale(scale)
	return s.items[i], nil
}

// Rotate turns the item a quarter turn clockwise.
func (s *Scene) Rotate(id int64) (types.Item, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, ErrItemNotFound
	}
	s.items[i].Rotation = normalizeRotation(s.items[i].Rotation + RotationStep)
	return s.items[i], nil
}

func (s *Scene) SetLabel(id int64, label string) (types.Item, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, ErrItemNotFound
	}
	s.items[i].Label = label
	return s.items[i], nil
}

// Delete removes the item and every connection that references it.
func (s *Scene) Delete(id int64) (types.Item, []types.Connection, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Item{}, nil, ErrItemNotFound
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)

	var dropped []types.Connection
	kept := make([]types.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		if c.From == id || c.To == id {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	s.connections = kept
	return removed, dropped, nil
}

// Connect links two existing, distinct items.
func (s *Scene) Connect(c types.Connection) error {
	if c.From == c.To {
		return ErrSelfConnection
	}
	if s.indexOf(c.From) < 0 || s.indexOf(c.To) < 0 {
		return ErrItemNotFound
	}
	if _, ok := s.Connection(c.ID); ok {
		return ErrDuplicateID
	}
	if c.Type == "" {
		c.Type = types.StyleSolid
	}
	if !validStyle(c.Type) {
		return ErrInvalidStyle
	}
	s.connections = append(s.connections, c)
	return nil
}

func (s *Scene) Disconnect(id int64) (types.Connection, error) {
	for i, c := range s.connections {
		if c.ID == id {
			s.connections = append(s.connections[:i:i], s.connections[i+1:]...)
			return c, nil
		}
	}
	return types.Connection{}, ErrConnectionNotFound
}

func (s *Scene) SetConnectionStyle(id int64, style types.ConnectionStyle) error {
	if !validStyle(style) {
		return ErrInvalidStyle
	}
	for i := range s.connections {
		if s.connections[i].ID == id {
			s.connections[i].Type = style
			return nil
		}
	}
	return ErrConnectionNotFound
}

func (s *Scene) Clear() {
	s.items = []types.Item{}
	s.connections = []types.Connection{}
}

// Resolved returns the connections whose ends both exist. Renderers draw
// only these; a stale peer can leave dangling references behind.
func (s *Scene) Resolved() []types.Connection {
	out := make([]types.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		if s.indexOf(c.From) >= 0 && s.indexOf(c.To) >= 0 {
			out = append(out, c)
		}
	}
	return out
}

// Dangling returns the connections Resolved skips.
func (s *Scene) Dangling() []types.Connection {
	var out []types.Connection
	for _, c := range s.connections {
		if s.indexOf(c.From) < 0 || s.indexOf(c.To) < 0 {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scene) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func ClampScale(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultScale
	}
	return math.Max(MinScale, math.Min(MaxScale, v))
}

func normalizeRotation(deg int) int {
	r := ((deg % 360) + 360) % 360
	return (r / RotationStep) * RotationStep
}

func validStyle(style types.ConnectionStyle) bool {
	return style == types.StyleSolid || style == types.StyleDashed
}
