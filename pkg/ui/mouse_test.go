package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/spatial/r2"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vanderheijden86/forcegraph/pkg/interact"
)

func mouse(x, y int, action tea.MouseAction, button tea.MouseButton) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: action, Button: button}
}

func types(msgs []interact.PointerMsg) []interact.EventType {
	out := make([]interact.EventType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func TestMouseCellCentre(t *testing.T) {
	if got := cellCentre(0, 0); got != (r2.Vec{X: 4, Y: 8}) {
		t.Fatalf("cellCentre(0,0) = %v", got)
	}
	if got := cellCentre(3, 2); got != (r2.Vec{X: 28, Y: 40}) {
		t.Fatalf("cellCentre(3,2) = %v", got)
	}
}

func TestMouseWheel(t *testing.T) {
	tr := newMouseTranslator(testingclock.NewFakePassiveClock(time.Unix(0, 0)))

	up := tr.translate(mouse(1, 1, tea.MouseActionPress, tea.MouseButtonWheelUp))
	if len(up) != 1 || up[0].Type != interact.Wheel || up[0].DeltaY >= 0 {
		t.Fatalf("wheel up = %+v", up)
	}
	down := tr.translate(mouse(1, 1, tea.MouseActionPress, tea.MouseButtonWheelDown))
	if len(down) != 1 || down[0].DeltaY <= 0 {
		t.Fatalf("wheel down = %+v", down)
	}
	if side := tr.translate(mouse(1, 1, tea.MouseActionPress, tea.MouseButtonWheelLeft)); side != nil {
		t.Fatalf("horizontal wheel = %+v, want nothing", side)
	}
}

func TestMousePressMoveRelease(t *testing.T) {
	tr := newMouseTranslator(testingclock.NewFakePassiveClock(time.Unix(0, 0)))

	got := tr.translate(mouse(2, 3, tea.MouseActionPress, tea.MouseButtonRight))
	if len(got) != 1 || got[0].Type != interact.PointerDown || got[0].Button != interact.ButtonSecondary {
		t.Fatalf("press = %+v", got)
	}
	if got[0].Pos != cellCentre(2, 3) || got[0].Kind != interact.Mouse {
		t.Fatalf("press position = %+v", got[0])
	}

	// Motion reports carry the button of the press.
	got = tr.translate(mouse(4, 3, tea.MouseActionMotion, tea.MouseButtonNone))
	if len(got) != 1 || got[0].Type != interact.PointerMove || got[0].Button != interact.ButtonSecondary {
		t.Fatalf("motion = %+v", got)
	}

	got = tr.translate(mouse(4, 3, tea.MouseActionRelease, tea.MouseButtonNone))
	if len(got) != 1 || got[0].Type != interact.PointerUp {
		t.Fatalf("release = %+v", got)
	}
}

func TestMouseModifiers(t *testing.T) {
	tr := newMouseTranslator(testingclock.NewFakePassiveClock(time.Unix(0, 0)))
	msg := mouse(0, 0, tea.MouseActionPress, tea.MouseButtonLeft)
	msg.Ctrl, msg.Shift = true, true
	got := tr.translate(msg)
	if !got[0].Mods.Ctrl || !got[0].Mods.Shift || got[0].Mods.Alt {
		t.Fatalf("modifiers = %+v", got[0].Mods)
	}
}

func TestMouseDoubleClick(t *testing.T) {
	fc := testingclock.NewFakePassiveClock(time.Unix(0, 0))
	tr := newMouseTranslator(fc)

	click := func(x, y int) []interact.EventType {
		var out []interact.EventType
		out = append(out, types(tr.translate(mouse(x, y, tea.MouseActionPress, tea.MouseButtonLeft)))...)
		out = append(out, types(tr.translate(mouse(x, y, tea.MouseActionRelease, tea.MouseButtonNone)))...)
		return out
	}

	if got := click(5, 5); len(got) != 2 {
		t.Fatalf("first click = %v", got)
	}
	fc.SetTime(fc.Now().Add(200 * time.Millisecond))
	got := click(5, 5)
	if len(got) != 3 || got[2] != interact.DoubleClick {
		t.Fatalf("second click = %v, want a trailing double click", got)
	}

	// A third quick click starts a new sequence.
	fc.SetTime(fc.Now().Add(100 * time.Millisecond))
	if got := click(5, 5); len(got) != 2 {
		t.Fatalf("third click = %v", got)
	}
}

func TestMouseDoubleClickNeedsSameCellAndTiming(t *testing.T) {
	fc := testingclock.NewFakePassiveClock(time.Unix(0, 0))
	tr := newMouseTranslator(fc)
	press := func(x, y int) {
		tr.translate(mouse(x, y, tea.MouseActionPress, tea.MouseButtonLeft))
	}
	release := func(x, y int) []interact.PointerMsg {
		return tr.translate(mouse(x, y, tea.MouseActionRelease, tea.MouseButtonNone))
	}

	press(1, 1)
	release(1, 1)
	fc.SetTime(fc.Now().Add(doubleClickInterval + time.Millisecond))
	press(1, 1)
	if got := release(1, 1); len(got) != 1 {
		t.Fatalf("slow second click produced %v", types(got))
	}

	fc.SetTime(fc.Now().Add(50 * time.Millisecond))
	press(2, 1)
	if got := release(2, 1); len(got) != 1 {
		t.Fatalf("click in another cell produced %v", types(got))
	}
}
