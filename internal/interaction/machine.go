// Package interaction turns normalized pointer input into discrete scene
// mutations. Mouse and touch both arrive as Pointer events; the gesture
// state lives in Machine rather than in flags threaded through handlers.
package interaction

import (
	"fmt"
	"math"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/scene"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

type Mode int

const (
	ModeIdle Mode = iota
	ModeToolSelected
	ModeDragging
	ModeResizing
	ModeConnectingFirstPick
	ModeConnectingSecondPick
	ModeItemSelected
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeToolSelected:
		return "tool_selected"
	case ModeDragging:
		return "dragging"
	case ModeResizing:
		return "resizing"
	case ModeConnectingFirstPick:
		return "connecting_first_pick"
	case ModeConnectingSecondPick:
		return "connecting_second_pick"
	case ModeItemSelected:
		return "item_selected"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Target is what the pointer landed on, as reported by the renderer's
// hit test.
type Target struct {
	ItemID       int64
	OnItem       bool
	ResizeHandle bool
}

// Pointer is one normalized mouse or touch sample. X and Y are pixels
// relative to the canvas origin.
type Pointer struct {
	X, Y   float64
	At     time.Time
	Target Target
}

type Canvas struct {
	Width, Height float64
}

type Vec struct {
	X, Y float64
}

// State is a read-only view of the machine.
type State struct {
	Mode         Mode
	Tool         string
	ItemID       int64
	Offset       Vec
	InitialScale float64
	Anchor       Vec
	FirstPick    int64
}

type Effect interface{ isEffect() }

// Sync asks for one full-state broadcast.
type Sync struct{}

// Ping asks for one activity message.
type Ping struct {
	Action   string
	ItemType string
}

// Render asks the renderer to redraw.
type Render struct{}

func (Sync) isEffect()   {}
func (Ping) isEffect()   {}
func (Render) isEffect() {}

type Config struct {
	TapThreshold      time.Duration
	ResizeSensitivity float64
}

func DefaultConfig() Config {
	return Config{
		TapThreshold:      200 * time.Millisecond,
		ResizeSensitivity: 0.003,
	}
}

type Machine struct {
	cfg    Config
	scene  *scene.Scene
	ids    *scene.IDSource
	canvas Canvas
	state  State

	pressedAt time.Time
	pressPos  Vec
	moved     bool
	pending   *Pointer
}

func NewMachine(cfg Config, sc *scene.Scene, ids *scene.IDSource) *Machine {
	return &Machine{cfg: cfg, scene: sc, ids: ids}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) SetCanvas(c Canvas) { m.canvas = c }

func (m *Machine) SelectTool(tool string) []Effect {
	m.reset()
	m.state = State{Mode: ModeToolSelected, Tool: tool}
	return []Effect{Render{}}
}

func (m *Machine) StartConnecting() []Effect {
	m.reset()
	m.state = State{Mode: ModeConnectingFirstPick}
	return []Effect{Render{}}
}

func (m *Machine) CancelConnecting() []Effect {
	if m.state.Mode != ModeConnectingFirstPick && m.state.Mode != ModeConnectingSecondPick {
		return nil
	}
	m.state = State{Mode: ModeIdle}
	return []Effect{Render{}}
}

func (m *Machine) Deselect() []Effect {
	m.reset()
	m.state = State{Mode: ModeIdle}
	return []Effect{Render{}}
}

func (m *Machine) Down(p Pointer) []Effect {
	if !p.Target.OnItem {
		return m.downOnCanvas(p)
	}

	it, ok := m.scene.Item(p.Target.ItemID)
	if !ok {
		return nil
	}

	switch m.state.Mode {
	case ModeConnectingFirstPick:
		m.state = State{Mode: ModeConnectingSecondPick, FirstPick: it.ID}
		return []Effect{Render{}}

	case ModeConnectingSecondPick:
		return m.pickSecond(it)

	case ModeDragging, ModeResizing:
		// A second finger while a gesture is running is ignored.
		return nil
	}

	m.pressedAt = p.At
	m.pressPos = Vec{p.X, p.Y}
	m.moved = false
	m.pending = nil

	if p.Target.ResizeHandle && m.state.Mode == ModeItemSelected && m.state.ItemID == it.ID {
		m.state = State{
			Mode:         ModeResizing,
			ItemID:       it.ID,
			InitialScale: it.Scale,
			Anchor:       Vec{p.X, p.Y},
		}
		return []Effect{Render{}}
	}

	rel, ok := m.relative(p)
	if !ok {
		return nil
	}
	m.state = State{
		Mode:   ModeDragging,
		ItemID: it.ID,
		Offset: Vec{rel.X - it.X, rel.Y - it.Y},
	}
	return []Effect{Render{}}
}

func (m *Machine) downOnCanvas(p Pointer) []Effect {
	switch m.state.Mode {
	case ModeToolSelected:
		rel, ok := m.relative(p)
		if !ok {
			return nil
		}
		tool := m.state.Tool
		it := types.Item{
			ID:       m.ids.Next(),
			Type:     tool,
			X:        rel.X,
			Y:        rel.Y,
			Rotation: 0,
			Scale:    scene.DefaultScale,
		}
		if err := m.scene.Place(it); err != nil {
			return nil
		}
		m.state = State{Mode: ModeIdle}
		return []Effect{Render{}, Sync{}, Ping{Action: "places " + scene.DisplayName(tool), ItemType: tool}}

	case ModeConnectingFirstPick, ModeConnectingSecondPick, ModeDragging, ModeResizing:
		return nil

	default:
		if m.state.Mode == ModeIdle {
			return nil
		}
		m.state = State{Mode: ModeIdle}
		return []Effect{Render{}}
	}
}

func (m *Machine) pickSecond(it types.Item) []Effect {
	if it.ID == m.state.FirstPick {
		return nil
	}
	conn := types.Connection{
		ID:   m.ids.Next(),
		From: m.state.FirstPick,
		To:   it.ID,
		Type: types.StyleSolid,
	}
	if err := m.scene.Connect(conn); err != nil {
		// The first pick vanished under an inbound replacement.
		m.state = State{Mode: ModeConnectingFirstPick}
		return []Effect{Render{}}
	}
	m.state = State{Mode: ModeIdle}
	return []Effect{Render{}, Sync{}, Ping{Action: "connects items", ItemType: "connection"}}
}

// Move records the latest pointer position. Nothing is applied until the
// next Frame, so bursts of input cost one update per frame. The return
// value reports whether a frame is now pending.
func (m *Machine) Move(p Pointer) bool {
	if m.state.Mode != ModeDragging && m.state.Mode != ModeResizing {
		return false
	}
	if p.X != m.pressPos.X || p.Y != m.pressPos.Y {
		m.moved = true
	}
	m.pending = &p
	return true
}

// Frame applies the coalesced pointer position, if any.
func (m *Machine) Frame() []Effect {
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	m.pending = nil
	m.apply(p)
	return []Effect{Render{}}
}

func (m *Machine) apply(p Pointer) bool {
	switch m.state.Mode {
	case ModeDragging:
		rel, ok := m.relative(p)
		if !ok {
			return false
		}
		if _, err := m.scene.Move(m.state.ItemID, rel.X-m.state.Offset.X, rel.Y-m.state.Offset.Y); err != nil {
			m.state = State{Mode: ModeIdle}
			return false
		}
		return true

	case ModeResizing:
		scale := ResizeScale(m.state.InitialScale, p.X-m.state.Anchor.X, p.Y-m.state.Anchor.Y, m.cfg.ResizeSensitivity)
		if _, err := m.scene.Resize(m.state.ItemID, scale); err != nil {
			m.state = State{Mode: ModeIdle}
			return false
		}
		return true
	}
	return false
}

func (m *Machine) Up(p Pointer) []Effect {
	mode := m.state.Mode
	if mode != ModeDragging && mode != ModeResizing {
		return nil
	}

	if m.pending != nil {
		pending := *m.pending
		m.pending = nil
		m.apply(pending)
	}
	if m.state.Mode != mode {
		// The item disappeared mid-gesture.
		return []Effect{Render{}}
	}

	id := m.state.ItemID
	it, _ := m.scene.Item(id)
	tap := !m.moved && p.At.Sub(m.pressedAt) < m.cfg.TapThreshold
	m.state = State{Mode: ModeItemSelected, ItemID: id}
	if tap {
		return []Effect{Render{}}
	}

	verb := "moves "
	if mode == ModeResizing {
		verb = "resizes "
	}
	return []Effect{Render{}, Ping{Action: verb + scene.DisplayName(it.Type), ItemType: it.Type}, Sync{}}
}

func (m *Machine) Rotate() []Effect {
	if m.state.Mode != ModeItemSelected {
		return nil
	}
	it, err := m.scene.Rotate(m.state.ItemID)
	if err != nil {
		return m.Deselect()
	}
	return []Effect{Render{}, Ping{Action: "rotates " + scene.DisplayName(it.Type), ItemType: it.Type}, Sync{}}
}

// Delete removes the selected item together with its connections.
func (m *Machine) Delete() []Effect {
	if m.state.Mode != ModeItemSelected {
		return nil
	}
	it, _, err := m.scene.Delete(m.state.ItemID)
	m.state = State{Mode: ModeIdle}
	if err != nil {
		return []Effect{Render{}}
	}
	return []Effect{Render{}, Ping{Action: "deletes " + scene.DisplayName(it.Type), ItemType: it.Type}, Sync{}}
}

func (m *Machine) SetLabel(label string) []Effect {
	if m.state.Mode != ModeItemSelected {
		return nil
	}
	if _, err := m.scene.SetLabel(m.state.ItemID, label); err != nil {
		return m.Deselect()
	}
	return []Effect{Render{}, Sync{}}
}

func (m *Machine) RemoveConnection(id int64) []Effect {
	if _, err := m.scene.Disconnect(id); err != nil {
		return nil
	}
	return []Effect{Render{}, Sync{}}
}

func (m *Machine) SetConnectionStyle(id int64, style types.ConnectionStyle) []Effect {
	if err := m.scene.SetConnectionStyle(id, style); err != nil {
		return nil
	}
	return []Effect{Render{}, Sync{}}
}

func (m *Machine) Clear() []Effect {
	m.reset()
	m.scene.Clear()
	m.state = State{Mode: ModeIdle}
	return []Effect{Render{}, Sync{}}
}

// Load replaces the scene with an imported setup and broadcasts it.
func (m *Machine) Load(st types.State) []Effect {
	m.reset()
	m.scene.Replace(st)
	m.observe()
	m.state = State{Mode: ModeIdle}
	return []Effect{Render{}, Sync{}}
}

// SceneReplaced reconciles the gesture with a scene that was swapped out
// underneath it. A gesture whose item survived continues from the new
// values; one whose item vanished is dropped.
func (m *Machine) SceneReplaced() {
	m.observe()
	switch m.state.Mode {
	case ModeDragging, ModeResizing, ModeItemSelected:
		it, ok := m.scene.Item(m.state.ItemID)
		if !ok {
			m.reset()
			m.state = State{Mode: ModeIdle}
			return
		}
		if m.state.Mode == ModeResizing {
			m.state.InitialScale = it.Scale
		}
	case ModeConnectingSecondPick:
		if _, ok := m.scene.Item(m.state.FirstPick); !ok {
			m.state = State{Mode: ModeConnectingFirstPick}
		}
	}
}

// ResizeScale maps the cumulative pointer displacement since the gesture
// started to a new scale. The sign follows dx+dy.
func ResizeScale(initial, dx, dy, k float64) float64 {
	distance := math.Sqrt(dx*dx + dy*dy)
	direction := -1.0
	if dx+dy > 0 {
		direction = 1.0
	}
	return scene.ClampScale(initial * (1 + direction*distance*k))
}

func (m *Machine) relative(p Pointer) (Vec, bool) {
	if m.canvas.Width <= 0 || m.canvas.Height <= 0 {
		return Vec{}, false
	}
	return Vec{p.X / m.canvas.Width, p.Y / m.canvas.Height}, true
}

func (m *Machine) reset() {
	m.pending = nil
	m.moved = false
}

func (m *Machine) observe() {
	st := m.scene.State()
	ids := make([]int64, 0, len(st.Items)+len(st.Connections))
	for _, it := range st.Items {
		ids = append(ids, it.ID)
	}
	for _, c := range st.Connections {
		ids = append(ids, c.ID)
	}
	m.ids.Observe(ids...)
}
