package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/spatial/r2"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/config"
	"github.com/vanderheijden86/forcegraph/pkg/document"
	"github.com/vanderheijden86/forcegraph/pkg/interact"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
)

type enabledCall struct {
	enabled bool
	alpha   float64
}

type fakeEngine struct {
	mu       sync.Mutex
	hit      int
	nodes    []model.NodeSpec
	edges    []model.Edge
	settings *model.Settings
	enabled  []enabledCall
	drags    []int

	ticks chan layout.TickMsg
	done  chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		hit:   model.NoNode,
		ticks: make(chan layout.TickMsg, 1),
		done:  make(chan struct{}),
	}
}

func (f *fakeEngine) NodeAt(context.Context, r2.Vec, float64, time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit
}

func (f *fakeEngine) DragNode(idx int, _ *r2.Vec, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drags = append(f.drags, idx)
	return nil
}

func (f *fakeEngine) SetNodes(nodes []model.NodeSpec, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = nodes
	return nil
}

func (f *fakeEngine) SetEdges(edges []model.Edge, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = edges
	return nil
}

func (f *fakeEngine) SetSettings(s model.Settings, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = &s
	return nil
}

func (f *fakeEngine) SetEnabled(enabled bool, alpha float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = append(f.enabled, enabledCall{enabled, alpha})
	return nil
}

func (f *fakeEngine) Ticks() <-chan layout.TickMsg { return f.ticks }
func (f *fakeEngine) Done() <-chan struct{}        { return f.done }

type fakeNeighbours struct {
	m   neighbors.Map
	err error
}

func (f fakeNeighbours) Submit([]model.Edge) *neighbors.Pending {
	return neighbors.Resolved(f.m, f.err)
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.UI.NoColor = true
	return cfg
}

func newTestModel(eng Engine, opts Options) Model {
	if opts.Config == (config.Config{}) {
		opts.Config = testConfig()
	}
	if opts.Clock == nil {
		opts.Clock = testingclock.NewFakePassiveClock(time.Unix(0, 0))
	}
	return NewModel(eng, fakeNeighbours{m: neighbors.Map{}}, opts)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	um, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return um, cmd
}

// run executes cmd and flattens batches into their messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// Default 80x24 terminal: a 21-row canvas whose world origin falls in
// column 40, row 10.
const originCol, originRow = 40, 10

func TestModelSeedsDocument(t *testing.T) {
	eng := newFakeEngine()
	s := model.DefaultSettings()
	s.LinkDistanceScale = 2.5
	doc := &document.Document{
		Nodes:    []model.NodeSpec{{R: 5}, {R: 6}},
		Edges:    []model.Edge{{Source: 0, Target: 1, Distance: 1}},
		Settings: &s,
	}
	m := newTestModel(eng, Options{Document: doc})

	// Init applies the document before returning its commands.
	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init returned no commands")
	}
	if len(eng.nodes) != 2 || len(eng.edges) != 1 || eng.settings == nil || eng.settings.LinkDistanceScale != 2.5 {
		t.Fatalf("engine not seeded: %+v %+v %+v", eng.nodes, eng.edges, eng.settings)
	}
}

func TestModelTickUpdatesCanvas(t *testing.T) {
	eng := newFakeEngine()
	m := newTestModel(eng, Options{})

	m, cmd := update(t, m, tickMsg{Progress: 0.5, Nodes: []model.Node{{ID: 0, R: 1}}})
	if m.progress != 0.5 || len(m.nodes) != 1 {
		t.Fatalf("tick not recorded: %v %v", m.progress, m.nodes)
	}
	if got := m.drawGraph().At(originCol, originRow); got != cellNode {
		t.Fatalf("origin cell = %d, want node", got)
	}

	// The returned command waits for the next tick.
	eng.ticks <- layout.TickMsg{Progress: 1}
	if msg, ok := cmd().(tickMsg); !ok || msg.Progress != 1 {
		t.Fatalf("follow-up = %#v", msg)
	}
}

func TestModelEngineStopped(t *testing.T) {
	eng := newFakeEngine()
	close(eng.done)
	m := newTestModel(eng, Options{})

	msg := waitForTickCmd(eng)()
	if _, ok := msg.(engineStoppedMsg); !ok {
		t.Fatalf("got %#v, want engineStoppedMsg", msg)
	}
	m, _ = update(t, m, msg)
	if !strings.Contains(m.statusLine(), "layout engine stopped") {
		t.Fatalf("status = %q", m.statusLine())
	}
}

func TestModelHighlightsActiveNeighbours(t *testing.T) {
	eng := newFakeEngine()
	eng.hit = 0
	m := newTestModel(eng, Options{Document: &document.Document{
		Edges: []model.Edge{{Source: 0, Target: 1}},
	}})

	m, _ = update(t, m, tickMsg{Nodes: []model.Node{
		{ID: 0, R: 1},
		{ID: 1, R: 1, X: 80},
		{ID: 2, R: 1, Y: 80},
	}})
	m, _ = update(t, m, neighboursMsg{m: neighbors.Map{0: {1}, 1: {0}, 2: {}}})

	// Press on node 0 and deliver the query answer.
	m, cmd := update(t, m, mouse(originCol, originRow+headerRows, tea.MouseActionPress, tea.MouseButtonLeft))
	msgs := run(cmd)
	if len(msgs) != 1 {
		t.Fatalf("press produced %d messages", len(msgs))
	}
	m, _ = update(t, m, msgs[0])
	if m.router.ActiveNode() != 0 {
		t.Fatalf("active node = %d, want 0", m.router.ActiveNode())
	}

	c := m.drawGraph()
	checks := []struct {
		col, row int
		want     cellKind
	}{
		{originCol, originRow, cellActive},
		{originCol + 10, originRow, cellNodeLit},
		{originCol + 5, originRow, cellEdgeLit},
		{originCol, originRow + 5, cellNode},
	}
	for _, tc := range checks {
		if got := c.At(tc.col, tc.row); got != tc.want {
			t.Errorf("cell %d,%d = %d, want %d", tc.col, tc.row, got, tc.want)
		}
	}
	if !strings.Contains(m.statusLine(), "node 0  1 neighbours") {
		t.Errorf("status = %q", m.statusLine())
	}

	// Releasing frees the node.
	m, _ = update(t, m, mouse(originCol, originRow+headerRows, tea.MouseActionRelease, tea.MouseButtonNone))
	if m.router.ActiveNode() != model.NoNode {
		t.Fatalf("active node after release = %d", m.router.ActiveNode())
	}
}

func TestModelIgnoresSupersededNeighbours(t *testing.T) {
	m := newTestModel(newFakeEngine(), Options{})
	m, _ = update(t, m, neighboursMsg{m: neighbors.Map{0: {1}}})
	m, _ = update(t, m, neighboursMsg{err: neighbors.ErrSuperseded})
	if len(m.neighbours[0]) != 1 {
		t.Fatalf("superseded result replaced neighbours: %v", m.neighbours)
	}
	m, _ = update(t, m, neighboursMsg{err: neighbors.ErrDestroyed})
	if len(m.neighbours[0]) != 1 {
		t.Fatalf("failed result replaced neighbours: %v", m.neighbours)
	}
}

func TestModelToggleEnabled(t *testing.T) {
	eng := newFakeEngine()
	m := newTestModel(eng, Options{})

	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key(" "))
	want := []enabledCall{{false, 1}, {true, 1}}
	if len(eng.enabled) != len(want) {
		t.Fatalf("SetEnabled calls = %v", eng.enabled)
	}
	for i := range want {
		if eng.enabled[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, eng.enabled[i], want[i])
		}
	}
	if !m.enabled || !strings.Contains(m.statusLine(), "resumed") {
		t.Fatalf("status = %q", m.statusLine())
	}
}

func TestModelCopyPositions(t *testing.T) {
	var copied string
	m := newTestModel(newFakeEngine(), Options{Copy: func(s string) error {
		copied = s
		return nil
	}})
	m, _ = update(t, m, tickMsg{Nodes: []model.Node{{ID: 0, X: 1, Y: 2}, {ID: 1, X: -3.5, Y: 0}}})

	_, cmd := update(t, m, key("y"))
	msgs := run(cmd)
	if len(msgs) != 1 {
		t.Fatalf("copy produced %d messages", len(msgs))
	}
	if want := `[{"id":0,"x":1,"y":2},{"id":1,"x":-3.5,"y":0}]`; copied != want {
		t.Fatalf("copied %s, want %s", copied, want)
	}
	m, _ = update(t, m, msgs[0])
	if !strings.Contains(m.statusLine(), "copied 2 node positions") {
		t.Fatalf("status = %q", m.statusLine())
	}
}

func TestModelCopyFailure(t *testing.T) {
	m := newTestModel(newFakeEngine(), Options{Copy: func(string) error {
		return errors.New("no clipboard")
	}})
	_, cmd := update(t, m, key("y"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.statusLine(), "copy failed: no clipboard") {
		t.Fatalf("status = %q", m.statusLine())
	}
}

func TestModelQuit(t *testing.T) {
	m := newTestModel(newFakeEngine(), Options{})
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("%q returned no command", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%q did not quit", k.String())
		}
	}
}

func TestModelResize(t *testing.T) {
	m := newTestModel(newFakeEngine(), Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	want := interact.Surface{Top: headerRows * cellH, Width: 100 * cellW, Height: 27 * cellH}
	if got := m.router.Surface(); got != want {
		t.Fatalf("surface = %+v, want %+v", got, want)
	}
	lines := strings.Split(m.View(), "\n")
	if len(lines) != 30 {
		t.Fatalf("view has %d lines, want 30", len(lines))
	}
}

func TestModelHelpBlocksMouse(t *testing.T) {
	eng := newFakeEngine()
	eng.hit = 0
	m := newTestModel(eng, Options{})

	m, _ = update(t, m, key("?"))
	if !m.showHelp || m.helpText == "" {
		t.Fatal("help not shown")
	}
	_, cmd := update(t, m, mouse(originCol, originRow+headerRows, tea.MouseActionPress, tea.MouseButtonLeft))
	if cmd != nil {
		t.Fatal("mouse routed while help is open")
	}
	m, _ = update(t, m, key("?"))
	if m.showHelp {
		t.Fatal("help not dismissed")
	}
}

func TestModelDocumentReload(t *testing.T) {
	m := newTestModel(newFakeEngine(), Options{})
	doc := &document.Document{
		Nodes: []model.NodeSpec{{R: 1}, {R: 1}, {R: 1}},
		Edges: []model.Edge{{Source: 0, Target: 2}},
	}
	m, cmd := update(t, m, documentMsg{doc: doc})
	if cmd == nil {
		t.Fatal("reload issued no commands")
	}
	if len(m.edges) != 1 || !strings.Contains(m.statusLine(), "reloaded 3 nodes, 1 edges") {
		t.Fatalf("reload not applied: edges %v status %q", m.edges, m.statusLine())
	}
}

func TestModelReloadsReachEngineInOrder(t *testing.T) {
	eng := newFakeEngine()
	m := newTestModel(eng, Options{})
	first := &document.Document{
		Nodes: []model.NodeSpec{{R: 1}, {R: 1}, {R: 1}},
		Edges: []model.Edge{{Source: 0, Target: 2}},
	}
	s := model.DefaultSettings()
	second := &document.Document{
		Nodes:    []model.NodeSpec{{R: 2}},
		Edges:    []model.Edge{},
		Settings: &s,
	}

	// No command is run: the engine is updated inside Update itself.
	m, _ = update(t, m, documentMsg{doc: first})
	if len(eng.nodes) != 3 || len(eng.edges) != 1 {
		t.Fatalf("first reload not applied: %v %v", eng.nodes, eng.edges)
	}
	_, _ = update(t, m, documentMsg{doc: second})
	if len(eng.nodes) != 1 || len(eng.edges) != 0 || eng.settings == nil {
		t.Fatalf("second reload not applied: %v %v %v", eng.nodes, eng.edges, eng.settings)
	}
}

func TestModelKeepsLatestNeighbours(t *testing.T) {
	nb := neighbors.New(neighbors.WithEventLogger(channel.NewEventLogger("neighbors").WithLevel(channel.LogLevelNone)))
	defer nb.Destroy()
	m := NewModel(newFakeEngine(), nb, Options{Config: testConfig(), Clock: testingclock.NewFakePassiveClock(time.Unix(0, 0))})

	older := m.requestNeighbours([]model.Edge{{Source: 0, Target: 1}})
	newer := m.requestNeighbours([]model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}})

	// Deliver the answers in the opposite order to the requests.
	newMsg, oldMsg := newer(), older()
	m, _ = update(t, m, newMsg)
	m, _ = update(t, m, oldMsg)
	if len(m.neighbours[2]) != 1 || len(m.neighbours[1]) != 2 {
		t.Fatalf("neighbours = %v, want the newer edge set", m.neighbours)
	}
}

func TestFit(t *testing.T) {
	if got := fit("hello", 8); got != "hello   " {
		t.Errorf("fit pad = %q", got)
	}
	if got := fit("hello world", 6); got != "hello…" {
		t.Errorf("fit truncate = %q", got)
	}
	if got := fit("x", 0); got != "" {
		t.Errorf("fit zero width = %q", got)
	}
}
