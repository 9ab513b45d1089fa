package document

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vanderheijden86/forcegraph/pkg/testutil"
)

func TestLoad_GeneratedFixtures(t *testing.T) {
	g := testutil.New(testutil.GeneratorConfig{Seed: 3, MinRadius: 2, MaxRadius: 10, Distance: 25})
	f := g.Tree(2, 4)

	for _, name := range []string{"tree.json", "tree.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := testutil.WriteDocument(t, filepath.Join(t.TempDir(), name), f)
			doc, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(doc.Nodes, f.Nodes) {
				t.Errorf("nodes = %v, want %v", doc.Nodes, f.Nodes)
			}
			if !reflect.DeepEqual(doc.Edges, f.Edges) {
				t.Errorf("edges = %v, want %v", doc.Edges, f.Edges)
			}
			if doc.Settings != nil || doc.Dangling() != 0 {
				t.Errorf("unexpected settings %v or dangling edges %d", doc.Settings, doc.Dangling())
			}
		})
	}
}
