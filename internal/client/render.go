package client

import (
	"fmt"

	"github.com/DoyleJ11/lab-whiteboard/internal/interaction"
	"github.com/DoyleJ11/lab-whiteboard/internal/presence"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

type Lifecycle int

const (
	Created Lifecycle = iota
	Connecting
	Connected
	Disconnected
	Reconnecting
	TornDown
)

func (l Lifecycle) String() string {
	switch l {
	case Created:
		return "created"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}

// SceneView is what the renderer draws. Connections with a missing end
// are already filtered out.
type SceneView struct {
	Items       []types.Item
	Connections []types.Connection
	Interaction interaction.State
}

type RosterView struct {
	Entries []presence.Entry
	Badges  []presence.Badge
}

// View is a consistent snapshot of the whole session.
type View struct {
	Session   types.Session
	Lifecycle Lifecycle
	Scene     SceneView
	Roster    RosterView
}

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

type Notice struct {
	Level NoticeLevel
	Text  string
}

// Renderer draws scene and roster. Calls come from the session loop.
type Renderer interface {
	RenderScene(v SceneView)
	RenderRoster(v RosterView)
}

type Notifier interface {
	Notify(n Notice)
}

// StatusListener drives the connectivity indicator.
type StatusListener interface {
	OnStatus(l Lifecycle)
}

type nopRenderer struct{}

func (nopRenderer) RenderScene(SceneView)   {}
func (nopRenderer) RenderRoster(RosterView) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopStatus struct{}

func (nopStatus) OnStatus(Lifecycle) {}
