// Package document loads graph documents: the node radii, edges and optional
// force settings a host feeds the layout engine.
//
// A document is JSON or YAML, chosen by file extension:
//
//	nodes:
//	  - r: 6
//	  - r: 4
//	edges:
//	  - {source: 0, target: 1, distance: 40}
//	settings:
//	  repulsion_strength: 150
//
// Absent settings fields keep their defaults.
package document

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/forcegraph/pkg/debug"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var (
	// ErrUnsupportedFormat is returned for paths whose extension names no known format.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidDocument is returned when a document parses but cannot seed a layout.
	ErrInvalidDocument = errors.New("invalid graph document")
)

// Document is a graph as supplied by the host.
type Document struct {
	Nodes    []model.NodeSpec `json:"nodes" yaml:"nodes"`
	Edges    []model.Edge     `json:"edges" yaml:"edges"`
	Settings *model.Settings  `json:"settings,omitempty" yaml:"settings,omitempty"`
}

type jsonDoc struct {
	Nodes    []model.NodeSpec `json:"nodes"`
	Edges    []model.Edge     `json:"edges"`
	Settings json.RawMessage  `json:"settings"`
}

type yamlDoc struct {
	Nodes    []model.NodeSpec `yaml:"nodes"`
	Edges    []model.Edge     `yaml:"edges"`
	Settings yaml.Node        `yaml:"settings"`
}

// FormatOf infers the format from a path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		metrics.DocumentLoad.Record(d)
		debug.LogTiming("document.Load "+path, d)
	}()

	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a document.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		var raw jsonDoc
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing JSON document: %w", err)
		}
		doc.Nodes, doc.Edges = raw.Nodes, raw.Edges
		if len(raw.Settings) > 0 && string(raw.Settings) != "null" {
			s := model.DefaultSettings()
			if err := json.Unmarshal(raw.Settings, &s); err != nil {
				return nil, fmt.Errorf("parsing settings: %w", err)
			}
			doc.Settings = &s
		}
	case FormatYAML:
		var raw yamlDoc
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML document: %w", err)
		}
		doc.Nodes, doc.Edges = raw.Nodes, raw.Edges
		if raw.Settings.Kind != 0 && raw.Settings.Tag != "!!null" {
			s := model.DefaultSettings()
			if err := raw.Settings.Decode(&s); err != nil {
				return nil, fmt.Errorf("parsing settings: %w", err)
			}
			doc.Settings = &s
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate rejects radii and settings the engine cannot use. Edges whose
// endpoints are out of range are allowed; the engine drops them.
func (d *Document) Validate() error {
	for i, n := range d.Nodes {
		if n.R < 0 || math.IsNaN(n.R) || math.IsInf(n.R, 0) {
			return fmt.Errorf("%w: node %d has radius %v", ErrInvalidDocument, i, n.R)
		}
	}
	if d.Settings != nil {
		if err := d.Settings.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	return nil
}

// Dangling counts edges with an endpoint outside the node list.
func (d *Document) Dangling() int {
	_, dropped := model.ValidateEdges(d.Edges, len(d.Nodes))
	return dropped
}

// Target receives a document's contents.
type Target interface {
	SetNodes(nodes []model.NodeSpec, alpha float64) error
	SetEdges(edges []model.Edge, alpha float64) error
	SetSettings(s model.Settings, alpha float64) error
}

// Apply rehydrates t from d: nodes, then edges, then settings when present.
func Apply(t Target, d *Document, alpha float64) error {
	if err := t.SetNodes(d.Nodes, alpha); err != nil {
		return fmt.Errorf("applying nodes: %w", err)
	}
	if err := t.SetEdges(d.Edges, alpha); err != nil {
		return fmt.Errorf("applying edges: %w", err)
	}
	if d.Settings != nil {
		if err := t.SetSettings(*d.Settings, alpha); err != nil {
			return fmt.Errorf("applying settings: %w", err)
		}
	}
	return nil
}
