package client

import (
	"github.com/DoyleJ11/lab-whiteboard/internal/interaction"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
)

type msg interface{ isSessionMsg() }

type opened struct{}

type inbound struct{ data []byte }

type closed struct{ err error }

type pointerDown struct{ p interaction.Pointer }

type pointerMove struct{ p interaction.Pointer }

type pointerUp struct{ p interaction.Pointer }

type setCanvas struct{ c interaction.Canvas }

// edit runs one machine command on the loop.
type edit struct {
	name string
	fn   func(m *interaction.Machine) []interaction.Effect
}

type load struct{ st types.State }

type getView struct{ reply chan View }

type getState struct{ reply chan types.State }

func (opened) isSessionMsg()      {}
func (inbound) isSessionMsg()     {}
func (closed) isSessionMsg()      {}
func (pointerDown) isSessionMsg() {}
func (pointerMove) isSessionMsg() {}
func (pointerUp) isSessionMsg()   {}
func (setCanvas) isSessionMsg()   {}
func (edit) isSessionMsg()        {}
func (load) isSessionMsg()        {}
func (getView) isSessionMsg()     {}
func (getState) isSessionMsg()    {}
