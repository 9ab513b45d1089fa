// Package protocol is the JSON wire form of the worker message vocabulary.
//
// Every message is an object whose "command" field names its kind:
//
//	{"command":"nodes","nodes":[{"r":4}],"alpha":1}
//	{"command":"drag","nodeIdx":3,"pos":{"x":10,"y":-2},"alpha":0.05}
//	{"command":"neighbours","edges":[{"source":0,"target":1}]}
//
// Outbound messages use the same envelope.
package protocol

import (
	"errors"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
)

// Tags that exist only on the wire.
const (
	TagNeighbours = "neighbours"
	TagError      = "error"
)

var (
	// ErrMalformed is returned for input that is not a well-formed message.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownCommand is returned for a well-formed message with an unrecognised tag.
	ErrUnknownCommand = errors.New("unknown command")
)

// NeighboursRequest asks the neighbour service for the adjacency of Edges.
type NeighboursRequest struct {
	Edges []model.Edge
}

// Command implements layout.Command so requests share one dispatch type.
func (NeighboursRequest) Command() string { return TagNeighbours }

// NeighboursMsg carries a computed neighbour map.
type NeighboursMsg struct {
	Neighbours neighbors.Map
}

func (NeighboursMsg) Command() string { return TagNeighbours }

// ErrorMsg reports a rejected inbound line.
type ErrorMsg struct {
	Err string
}

func (ErrorMsg) Command() string { return TagError }

// point is the wire form of r2.Vec.
type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p point) vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

type envelope struct {
	Command string `json:"command"`
}

type nodesWire struct {
	Nodes []model.NodeSpec `json:"nodes"`
	Alpha *float64         `json:"alpha"`
}

type edgesWire struct {
	Edges []model.Edge `json:"edges"`
	Alpha *float64     `json:"alpha"`
}

type settingsWire struct {
	Settings json.RawMessage `json:"settings"`
	Alpha    *float64        `json:"alpha"`
}

type dragWire struct {
	NodeIdx *int     `json:"nodeIdx"`
	Pos     *point   `json:"pos"`
	Alpha   *float64 `json:"alpha"`
}

type enabledWire struct {
	Enabled *bool    `json:"enabled"`
	Alpha   *float64 `json:"alpha"`
}

type nodeAtWire struct {
	Seq   uint64   `json:"seq"`
	Pos   *point   `json:"pos"`
	Scale *float64 `json:"scale"`
}

type neighboursWire struct {
	Edges []model.Edge `json:"edges"`
}

// DecodeCommand parses one inbound message. It returns a layout command or a
// NeighboursRequest. Missing alpha fields default to zero; a missing scale
// defaults to 1.
func DecodeCommand(data []byte) (layout.Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Command == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}

	switch env.Command {
	case layout.TagNodes:
		var w nodesWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.Nodes == nil {
			return nil, missing(env.Command, "nodes")
		}
		for i, n := range w.Nodes {
			if n.R < 0 {
				return nil, fmt.Errorf("%w: node %d has negative radius", ErrMalformed, i)
			}
		}
		return layout.SetNodesCmd{Nodes: w.Nodes, Alpha: deref(w.Alpha)}, nil

	case layout.TagEdges:
		var w edgesWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.Edges == nil {
			return nil, missing(env.Command, "edges")
		}
		return layout.SetEdgesCmd{Edges: w.Edges, Alpha: deref(w.Alpha)}, nil

	case layout.TagSettings:
		var w settingsWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if len(w.Settings) == 0 || string(w.Settings) == "null" {
			return nil, missing(env.Command, "settings")
		}
		// Fields absent from the payload keep their defaults.
		s := model.DefaultSettings()
		if err := decode(w.Settings, &s); err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return layout.SetSettingsCmd{Settings: s, Alpha: deref(w.Alpha)}, nil

	case layout.TagDrag:
		var w dragWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.NodeIdx == nil {
			return nil, missing(env.Command, "nodeIdx")
		}
		cmd := layout.DragCmd{NodeIdx: *w.NodeIdx, Alpha: deref(w.Alpha)}
		if w.Pos != nil {
			v := w.Pos.vec()
			cmd.Pos = &v
		}
		return cmd, nil

	case layout.TagEnabled:
		var w enabledWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.Enabled == nil {
			return nil, missing(env.Command, "enabled")
		}
		return layout.EnabledCmd{Enabled: *w.Enabled, Alpha: deref(w.Alpha)}, nil

	case layout.TagNodeAt:
		var w nodeAtWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.Pos == nil {
			return nil, missing(env.Command, "pos")
		}
		scale := 1.0
		if w.Scale != nil {
			scale = *w.Scale
		}
		if scale <= 0 || math.IsInf(scale, 0) {
			return nil, fmt.Errorf("%w: nodeAt scale must be positive", ErrMalformed)
		}
		return layout.NodeAtCmd{Seq: w.Seq, Pos: w.Pos.vec(), Scale: scale}, nil

	case TagNeighbours:
		var w neighboursWire
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		if w.Edges == nil {
			return nil, missing(env.Command, "edges")
		}
		return NeighboursRequest{Edges: w.Edges}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command)
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func missing(cmd, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMalformed, cmd, field)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

type tickOut struct {
	Command  string       `json:"command"`
	Progress float64      `json:"progress"`
	Nodes    []model.Node `json:"nodes"`
}

type nodeAtOut struct {
	Command string `json:"command"`
	Seq     uint64 `json:"seq"`
	NodeIdx int    `json:"nodeIdx"`
}

type neighboursOut struct {
	Command    string        `json:"command"`
	Neighbours neighbors.Map `json:"neighbours"`
}

type errorOut struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

// EncodeMessage encodes an outbound message: layout.TickMsg, layout.NodeAtMsg,
// NeighboursMsg or ErrorMsg.
func EncodeMessage(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case layout.TickMsg:
		nodes := m.Nodes
		if nodes == nil {
			nodes = []model.Node{}
		}
		return json.Marshal(tickOut{Command: layout.TagTick, Progress: m.Progress, Nodes: nodes})
	case layout.NodeAtMsg:
		return json.Marshal(nodeAtOut{Command: layout.TagNodeAt, Seq: m.Seq, NodeIdx: m.NodeIdx})
	case NeighboursMsg:
		nb := m.Neighbours
		if nb == nil {
			nb = neighbors.Map{}
		}
		return json.Marshal(neighboursOut{Command: TagNeighbours, Neighbours: nb})
	case ErrorMsg:
		return json.Marshal(errorOut{Command: TagError, Error: m.Err})
	}
	return nil, fmt.Errorf("%w: cannot encode %T", ErrUnknownCommand, msg)
}

// DecodeMessage parses an outbound message, the inverse of EncodeMessage.
// Hosts reading the bridge output use it.
func DecodeMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Command {
	case layout.TagTick:
		var w tickOut
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		return layout.TickMsg{Progress: w.Progress, Nodes: w.Nodes}, nil
	case layout.TagNodeAt:
		var w nodeAtOut
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		return layout.NodeAtMsg{Seq: w.Seq, NodeIdx: w.NodeIdx}, nil
	case TagNeighbours:
		var w neighboursOut
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		return NeighboursMsg{Neighbours: w.Neighbours}, nil
	case TagError:
		var w errorOut
		if err := decode(data, &w); err != nil {
			return nil, err
		}
		return ErrorMsg{Err: w.Error}, nil
	case "":
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command)
}
