package testutil

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// AssertFinite fails if any node position or velocity is NaN or infinite.
func AssertFinite(t *testing.T, nodes []model.Node) {
	t.Helper()
	for _, n := range nodes {
		for _, v := range []float64{n.X, n.Y, n.VX, n.VY} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("node %d has non-finite state: %+v", n.ID, n)
			}
		}
	}
}

// AssertIDsMatchIndex fails unless nodes[i].ID == i for every node.
func AssertIDsMatchIndex(t *testing.T, nodes []model.Node) {
	t.Helper()
	for i, n := range nodes {
		if n.ID != i {
			t.Fatalf("nodes[%d].ID = %d", i, n.ID)
		}
	}
}

// AssertWithin fails if any node lies further than radius from the origin.
func AssertWithin(t *testing.T, nodes []model.Node, radius float64) {
	t.Helper()
	for _, n := range nodes {
		if d := math.Hypot(n.X, n.Y); d > radius {
			t.Fatalf("node %d at distance %.1f, want <= %.1f", n.ID, d, radius)
		}
	}
}

// AssertSymmetric fails unless every neighbour relation appears in both lists
// the same number of times.
func AssertSymmetric(t *testing.T, m map[int][]int) {
	t.Helper()
	count := func(list []int, v int) int {
		n := 0
		for _, x := range list {
			if x == v {
				n++
			}
		}
		return n
	}
	for a, list := range m {
		for _, b := range list {
			if count(m[b], a) != count(list, b) {
				t.Fatalf("neighbours not symmetric: %d lists %d x%d, %d lists %d x%d",
					a, b, count(list, b), b, a, count(m[b], a))
			}
		}
	}
}

// AssertSameNeighbours compares two neighbour maps ignoring list order.
func AssertSameNeighbours(t *testing.T, want, got map[int][]int) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("got %d nodes with neighbours, want %d", len(got), len(want))
	}
	for id, w := range want {
		g := slices.Clone(got[id])
		w = slices.Clone(w)
		slices.Sort(g)
		slices.Sort(w)
		if !slices.Equal(w, g) {
			t.Fatalf("neighbours of %d = %v, want %v", id, g, w)
		}
	}
}

type documentFile struct {
	Nodes []model.NodeSpec `json:"nodes" yaml:"nodes"`
	Edges []model.Edge     `json:"edges" yaml:"edges"`
}

// WriteDocument writes f as a graph document, YAML or JSON by extension, and
// returns the path.
func WriteDocument(t *testing.T, path string, f Fixture) string {
	t.Helper()

	doc := documentFile{Nodes: f.Nodes, Edges: f.Edges}
	if doc.Nodes == nil {
		doc.Nodes = []model.NodeSpec{}
	}
	if doc.Edges == nil {
		doc.Edges = []model.Edge{}
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		t.Fatalf("failed to encode document: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create document dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	return path
}
