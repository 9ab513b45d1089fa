package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/spatial/r2"
	"k8s.io/utils/clock"

	"github.com/vanderheijden86/forcegraph/pkg/interact"
)

const (
	doubleClickInterval = 400 * time.Millisecond
	wheelDelta          = 100.0
)

// mouseTranslator turns terminal mouse reports into pointer events. The
// terminal reports cells; positions are the centre of the cell in pixels.
type mouseTranslator struct {
	clock clock.PassiveClock

	lastPress    time.Time
	lastPressPos r2.Vec
	presses      int
	button       interact.Button
}

func newMouseTranslator(c clock.PassiveClock) *mouseTranslator {
	return &mouseTranslator{clock: c}
}

func cellCentre(x, y int) r2.Vec {
	return r2.Vec{X: (float64(x) + 0.5) * cellW, Y: (float64(y) + 0.5) * cellH}
}

func buttonOf(b tea.MouseButton) interact.Button {
	switch b {
	case tea.MouseButtonMiddle:
		return interact.ButtonMiddle
	case tea.MouseButtonRight:
		return interact.ButtonSecondary
	}
	return interact.ButtonPrimary
}

// translate returns the pointer events for one mouse report. A second press
// in the same cell within the double-click interval adds a DoubleClick after
// its release, as browsers do.
func (t *mouseTranslator) translate(m tea.MouseMsg) []interact.PointerMsg {
	pos := cellCentre(m.X, m.Y)
	base := interact.PointerMsg{
		Kind: interact.Mouse,
		Pos:  pos,
		Mods: interact.Modifiers{Ctrl: m.Ctrl, Shift: m.Shift, Alt: m.Alt},
	}

	if tea.MouseEvent(m).IsWheel() {
		switch m.Button {
		case tea.MouseButtonWheelUp:
			base.DeltaY = -wheelDelta
		case tea.MouseButtonWheelDown:
			base.DeltaY = wheelDelta
		default:
			return nil
		}
		base.Type = interact.Wheel
		return []interact.PointerMsg{base}
	}

	switch m.Action {
	case tea.MouseActionPress:
		now := t.clock.Now()
		if t.presses > 0 && now.Sub(t.lastPress) <= doubleClickInterval && pos == t.lastPressPos {
			t.presses++
		} else {
			t.presses = 1
		}
		t.lastPress, t.lastPressPos = now, pos
		t.button = buttonOf(m.Button)

		base.Type = interact.PointerDown
		base.Button = t.button
		return []interact.PointerMsg{base}

	case tea.MouseActionMotion:
		base.Type = interact.PointerMove
		base.Button = t.button
		return []interact.PointerMsg{base}

	case tea.MouseActionRelease:
		base.Type = interact.PointerUp
		base.Button = t.button
		out := []interact.PointerMsg{base}
		if t.presses == 2 && t.button == interact.ButtonPrimary {
			t.presses = 0
			dbl := base
			dbl.Type = interact.DoubleClick
			out = append(out, dbl)
		}
		return out
	}
	return nil
}
