package layout

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// Command tags as they appear on the wire.
const (
	TagNodes    = "nodes"
	TagEdges    = "edges"
	TagSettings = "settings"
	TagDrag     = "drag"
	TagEnabled  = "enabled"
	TagNodeAt   = "nodeAt"
	TagTick     = "tick"
)

// Command is a message to the simulation worker.
type Command interface {
	Command() string
}

// Message is a message from the simulation worker.
type Message interface {
	Command() string
}

// SetNodesCmd replaces or resizes the node set, then restarts at Alpha.
type SetNodesCmd struct {
	Nodes []model.NodeSpec `json:"nodes"`
	Alpha float64          `json:"alpha"`
}

// SetEdgesCmd replaces the edge set when its length changed, then restarts.
type SetEdgesCmd struct {
	Edges []model.Edge `json:"edges"`
	Alpha float64      `json:"alpha"`
}

// SetSettingsCmd applies force settings, then restarts.
type SetSettingsCmd struct {
	Settings model.Settings `json:"settings"`
	Alpha    float64        `json:"alpha"`
}

// DragCmd pins NodeIdx at Pos, or releases it when Pos is nil, then restarts.
type DragCmd struct {
	NodeIdx int     `json:"nodeIdx"`
	Pos     *r2.Vec `json:"pos"`
	Alpha   float64 `json:"alpha"`
}

// EnabledCmd toggles animation. Enabling restarts at Alpha.
type EnabledCmd struct {
	Enabled bool    `json:"enabled"`
	Alpha   float64 `json:"alpha"`
}

// NodeAtCmd asks for the node under Pos at zoom Scale.
type NodeAtCmd struct {
	Seq   uint64  `json:"seq"`
	Pos   r2.Vec  `json:"pos"`
	Scale float64 `json:"scale"`
}

// TickMsg reports progress and positions after one step.
type TickMsg struct {
	Progress float64      `json:"progress"`
	Nodes    []model.Node `json:"nodes"`
}

// NodeAtMsg answers the NodeAtCmd with the same Seq.
type NodeAtMsg struct {
	Seq     uint64 `json:"seq"`
	NodeIdx int    `json:"nodeIdx"`
}

func (SetNodesCmd) Command() string    { return TagNodes }
func (SetEdgesCmd) Command() string    { return TagEdges }
func (SetSettingsCmd) Command() string { return TagSettings }
func (DragCmd) Command() string        { return TagDrag }
func (EnabledCmd) Command() string     { return TagEnabled }
func (NodeAtCmd) Command() string      { return TagNodeAt }
func (TickMsg) Command() string        { return TagTick }
func (NodeAtMsg) Command() string      { return TagNodeAt }
