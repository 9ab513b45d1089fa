// Package model defines the plain data exchanged between the layout engine,
// the neighbour service and the embedding host.
package model

import (
	"errors"
	"fmt"
	"math"
)

// NoNode is returned by spatial queries that hit nothing.
const NoNode = -1

// ErrInvalidSettings is returned when a Settings value cannot drive the force model.
var ErrInvalidSettings = errors.New("invalid simulation settings")

// Node is a simulated node. ID is its index in the host's node list.
// FX/FY hold the pinned position while the node is dragged; nil means free.
type Node struct {
	ID int      `json:"id" yaml:"id"`
	R  float64  `json:"r" yaml:"r"`
	X  float64  `json:"x" yaml:"x"`
	Y  float64  `json:"y" yaml:"y"`
	VX float64  `json:"vx,omitempty" yaml:"vx,omitempty"`
	VY float64  `json:"vy,omitempty" yaml:"vy,omitempty"`
	FX *float64 `json:"fx" yaml:"fx"`
	FY *float64 `json:"fy" yaml:"fy"`
}

// Pinned reports whether the node position is fixed externally.
func (n Node) Pinned() bool {
	return n.FX != nil && n.FY != nil
}

// Clone returns a copy that shares no pointers with n.
func (n Node) Clone() Node {
	c := n
	if n.FX != nil {
		fx := *n.FX
		c.FX = &fx
	}
	if n.FY != nil {
		fy := *n.FY
		c.FY = &fy
	}
	return c
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i := range nodes {
		out[i] = nodes[i].Clone()
	}
	return out
}

// NodeSpec is what the host supplies for a node: only its radius.
// Ids and positions are owned by the engine.
type NodeSpec struct {
	R float64 `json:"r" yaml:"r"`
}

// Edge links two node ids. Distance is the rest length before scaling.
type Edge struct {
	Source   int     `json:"source" yaml:"source"`
	Target   int     `json:"target" yaml:"target"`
	Distance float64 `json:"distance" yaml:"distance"`
}

// ValidateEdges splits edges into those whose endpoints exist in a node set of
// size nodeCount and a count of the rest.
func ValidateEdges(edges []Edge, nodeCount int) (valid []Edge, dropped int) {
	valid = make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source < 0 || e.Source >= nodeCount || e.Target < 0 || e.Target >= nodeCount {
			dropped++
			continue
		}
		valid = append(valid, e)
	}
	return valid, dropped
}

// Settings are the tunable force parameters.
type Settings struct {
	RepulsionStrength      float64 `json:"repulsionStrength" yaml:"repulsion_strength"`
	RepulsionNormalization float64 `json:"repulsionNormalization" yaml:"repulsion_normalization"`
	RepulsionLimit         float64 `json:"repulsionLimit" yaml:"repulsion_limit"`
	LinkDistanceScale      float64 `json:"linkDistanceScale" yaml:"link_distance_scale"`
	LinkStrength           float64 `json:"linkStrength" yaml:"link_strength"`
	CenterStrength         float64 `json:"centerStrength" yaml:"center_strength"`
}

// DefaultSettings mirrors the widget's initial slider positions.
func DefaultSettings() Settings {
	return Settings{
		RepulsionStrength:      100,
		RepulsionNormalization: 0.5,
		RepulsionLimit:         600,
		LinkDistanceScale:      1,
		LinkStrength:           1,
		CenterStrength:         0.05,
	}
}

// Validate rejects values the integrator cannot use.
func (s Settings) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"repulsionStrength", s.RepulsionStrength},
		{"repulsionNormalization", s.RepulsionNormalization},
		{"repulsionLimit", s.RepulsionLimit},
		{"linkDistanceScale", s.LinkDistanceScale},
		{"linkStrength", s.LinkStrength},
		{"centerStrength", s.CenterStrength},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSettings, f.name)
		}
	}
	if s.RepulsionLimit < 0 {
		return fmt.Errorf("%w: repulsionLimit must be >= 0", ErrInvalidSettings)
	}
	if s.LinkDistanceScale < 0 {
		return fmt.Errorf("%w: linkDistanceScale must be >= 0", ErrInvalidSettings)
	}
	return nil
}
