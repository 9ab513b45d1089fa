package interact

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// EventType is the kind of pointer event.
type EventType int

const (
	PointerDown EventType = iota
	PointerMove
	PointerUp
	Wheel
	DoubleClick
)

func (e EventType) String() string {
	switch e {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	case Wheel:
		return "wheel"
	case DoubleClick:
		return "dblclick"
	default:
		return "unknown"
	}
}

// PointerKind distinguishes mouse from touch input.
type PointerKind int

const (
	Mouse PointerKind = iota
	Touch
)

// Button is the mouse button that triggered an event.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Modifiers are the keyboard modifiers held during an event.
type Modifiers struct {
	Ctrl, Shift, Alt, Meta bool
}

// PointerMsg is one raw pointer, touch or wheel event in screen coordinates.
type PointerMsg struct {
	Type   EventType
	Kind   PointerKind
	ID     int // touch identifier; 0 for the mouse
	Button Button
	Mods   Modifiers
	Pos    r2.Vec
	DeltaY float64 // wheel only; positive scrolls down

	// PreventDefault, when set, suppresses the host's default handling.
	PreventDefault func()
}

func (m PointerMsg) preventDefault() {
	if m.PreventDefault != nil {
		m.PreventDefault()
	}
}

// owned reports whether the router handles a gesture starting with m.
// Ctrl is only accepted on wheel events and only the primary button starts
// a gesture.
func owned(m PointerMsg) bool {
	if m.Mods.Ctrl && m.Type != Wheel {
		return false
	}
	return m.Button == ButtonPrimary
}
