package interact

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// Drag tracks one node being dragged by one pointer. Positions are in world
// space.
type Drag struct {
	OnStart func(subject int, world r2.Vec)
	OnDrag  func(subject int, world r2.Vec)
	OnEnd   func(subject int, world r2.Vec)

	subject   int
	pointerID int
	active    bool
	last      r2.Vec
}

// NewDrag returns an idle drag.
func NewDrag() *Drag {
	return &Drag{subject: model.NoNode}
}

// Active reports whether a node is being dragged.
func (d *Drag) Active() bool {
	return d.active
}

// Subject returns the dragged node, or model.NoNode.
func (d *Drag) Subject() int {
	return d.subject
}

// Start begins dragging subject with pointer id.
func (d *Drag) Start(subject, id int, world r2.Vec) {
	d.subject, d.pointerID, d.active, d.last = subject, id, true, world
	if d.OnStart != nil {
		d.OnStart(subject, world)
	}
}

// Move reports whether the event belonged to the drag.
func (d *Drag) Move(id int, world r2.Vec) bool {
	if !d.active || id != d.pointerID {
		return false
	}
	d.last = world
	if d.OnDrag != nil {
		d.OnDrag(d.subject, world)
	}
	return true
}

// End finishes the drag and reports whether the event belonged to it.
func (d *Drag) End(id int, world r2.Vec) bool {
	if !d.active || id != d.pointerID {
		return false
	}
	subject := d.subject
	d.active = false
	d.subject = model.NoNode
	if d.OnEnd != nil {
		d.OnEnd(subject, world)
	}
	return true
}
