// Package ui is a terminal host for the layout engine: it seeds the engine
// from a graph document, draws each tick on a character canvas and routes
// mouse input through the interaction router.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"
	"gonum.org/v1/gonum/spatial/r2"
	"k8s.io/utils/clock"

	"github.com/vanderheijden86/forcegraph/pkg/config"
	"github.com/vanderheijden86/forcegraph/pkg/debug"
	"github.com/vanderheijden86/forcegraph/pkg/document"
	"github.com/vanderheijden86/forcegraph/pkg/interact"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
)

// Rows taken by the header, the progress bar and the status line.
const (
	headerRows = 1
	footerRows = 2
)

// Engine is what the view needs from the layout engine.
type Engine interface {
	interact.Engine
	document.Target
	SetEnabled(enabled bool, alpha float64) error
	Ticks() <-chan layout.TickMsg
	Done() <-chan struct{}
}

// Neighbours computes adjacency for highlighting. Submit registers the
// request before it returns.
type Neighbours interface {
	Submit(edges []model.Edge) *neighbors.Pending
}

// Options configures a Model.
type Options struct {
	Config   config.Config
	Document *document.Document
	Watcher  *document.Watcher  // optional; reloads re-seed the engine
	Clock    clock.PassiveClock // double-click and double-tap timing
	Copy     func(string) error // defaults to the system clipboard
}

type tickMsg layout.TickMsg

type engineStoppedMsg struct{}

type neighboursMsg struct {
	seq uint64
	m   neighbors.Map
	err error
}

type documentMsg struct {
	doc *document.Document
}

type copiedMsg struct {
	nodes int
	err   error
}

type seededMsg struct {
	err error
}

// Model is the bubbletea model of the graph view.
type Model struct {
	engine  Engine
	nb      Neighbours
	watcher *document.Watcher
	cfg     config.Config
	copy    func(string) error

	router *interact.Router
	mouse  *mouseTranslator
	bar    progress.Model
	theme  Theme

	seed       *document.Document
	edges      []model.Edge
	nodes      []model.Node
	progress   float64
	neighbours neighbors.Map
	nbSeq      uint64 // latest neighbours request
	enabled    bool

	width, height int
	showHelp      bool
	helpText      string
	status        string
	err           error
}

// NewModel returns a view over engine, seeded from opts.Document on Init.
func NewModel(engine Engine, nb Neighbours, opts Options) Model {
	c := opts.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	cp := opts.Copy
	if cp == nil {
		cp = clipboard.WriteAll
	}
	doc := opts.Document
	if doc == nil {
		doc = &document.Document{}
	}

	barOpts := []progress.Option{progress.WithoutPercentage()}
	if opts.Config.UI.NoColor {
		barOpts = append(barOpts, progress.WithSolidFill("7"))
	} else {
		barOpts = append(barOpts, progress.WithDefaultGradient())
	}

	m := Model{
		engine:  engine,
		nb:      nb,
		watcher: opts.Watcher,
		cfg:     opts.Config,
		copy:    cp,
		router: interact.NewRouter(engine, opts.Config.Interaction,
			interact.WithClock(c), interact.WithFPS(opts.Config.UI.FPS)),
		mouse:   newMouseTranslator(c),
		bar:     progress.New(barOpts...),
		theme:   DefaultTheme(opts.Config.UI.NoColor),
		edges:   doc.Edges,
		enabled: true,
		width:   80,
		height:  24,
	}
	m.seed = doc
	m.resize(m.width, m.height)
	return m
}

// Init seeds the engine and starts listening for ticks and reloads.
func (m Model) Init() tea.Cmd {
	err := document.Apply(m.engine, m.seed, m.cfg.Simulation.InitialAlpha)
	cmds := []tea.Cmd{
		func() tea.Msg { return seededMsg{err: err} },
		neighboursCmd(m.nb, m.nbSeq, m.edges),
		waitForTickCmd(m.engine),
	}
	if m.watcher != nil {
		cmds = append(cmds, waitForDocumentCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

func waitForTickCmd(e Engine) tea.Cmd {
	return func() tea.Msg {
		select {
		case t := <-e.Ticks():
			return tickMsg(t)
		case <-e.Done():
			return engineStoppedMsg{}
		}
	}
}

// waitForDocumentCmd waits for the next reloaded document.
func waitForDocumentCmd(w *document.Watcher) tea.Cmd {
	return func() tea.Msg {
		return documentMsg{doc: <-w.Changed()}
	}
}

// neighboursCmd registers edges with nb now and waits for the map in the
// returned command.
func neighboursCmd(nb Neighbours, seq uint64, edges []model.Edge) tea.Cmd {
	if nb == nil {
		return nil
	}
	p := nb.Submit(edges)
	return func() tea.Msg {
		nm, err := p.Wait(context.Background())
		return neighboursMsg{seq: seq, m: nm, err: err}
	}
}

// requestNeighbours supersedes every earlier request for this view.
func (m *Model) requestNeighbours(edges []model.Edge) tea.Cmd {
	m.nbSeq++
	return neighboursCmd(m.nb, m.nbSeq, edges)
}

// Update handles engine output, input and resize events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.nodes = msg.Nodes
		m.progress = msg.Progress
		return m, waitForTickCmd(m.engine)

	case engineStoppedMsg:
		m.err = errors.New("layout engine stopped")
		return m, nil

	case seededMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case neighboursMsg:
		switch {
		case msg.seq != m.nbSeq:
			// Answer to a request that a reload has replaced.
		case errors.Is(msg.err, neighbors.ErrSuperseded):
			// A newer request is on its way.
		case msg.err != nil:
			debug.Log("ui: neighbours: %v", msg.err)
		default:
			m.neighbours = msg.m
		}
		return m, nil

	case documentMsg:
		if msg.doc == nil {
			return m, nil
		}
		// Engine sends only queue, so reloads reach the engine in arrival order.
		if err := document.Apply(m.engine, msg.doc, m.cfg.Simulation.InitialAlpha); err != nil {
			m.err = err
		}
		m.edges = msg.doc.Edges
		m.status = fmt.Sprintf("reloaded %d nodes, %d edges", len(msg.doc.Nodes), len(msg.doc.Edges))
		return m, tea.Batch(
			m.requestNeighbours(msg.doc.Edges),
			waitForDocumentCmd(m.watcher),
		)

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("copied %d node positions", msg.nodes)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.showHelp {
			return m, nil
		}
		var cmds []tea.Cmd
		for _, pm := range m.mouse.translate(msg) {
			cmds = append(cmds, m.router.Update(pm))
		}
		if err := m.router.Err(); err != nil {
			m.err = err
		}
		return m, tea.Batch(cmds...)
	}

	// Query results and reset frames belong to the router.
	return m, m.router.Update(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
		if m.showHelp && m.helpText == "" {
			m.helpText = renderHelp(m.width, m.cfg.UI.NoColor)
		}
		return m, nil
	case "esc":
		m.showHelp = false
		return m, nil
	case "r":
		return m, m.router.Reset()
	case " ", "space":
		m.enabled = !m.enabled
		if err := m.engine.SetEnabled(m.enabled, m.cfg.Simulation.InitialAlpha); err != nil {
			m.err = err
		}
		if m.enabled {
			m.status = "simulation resumed"
		} else {
			m.status = "simulation paused"
		}
		return m, nil
	case "y":
		return m, copyPositionsCmd(m.copy, m.nodes)
	}
	return m, nil
}

type position struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

func copyPositionsCmd(cp func(string) error, nodes []model.Node) tea.Cmd {
	out := make([]position, len(nodes))
	for i, n := range nodes {
		out[i] = position{ID: n.ID, X: n.X, Y: n.Y}
	}
	return func() tea.Msg {
		data, err := json.Marshal(out)
		if err != nil {
			return copiedMsg{err: err}
		}
		return copiedMsg{nodes: len(out), err: cp(string(data))}
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = max(width, 1), max(height, 1)
	m.router.SetSurface(interact.Surface{
		Left:   0,
		Top:    headerRows * cellH,
		Width:  float64(m.width) * cellW,
		Height: float64(m.canvasRows()) * cellH,
	})
	m.bar.Width = m.width
	m.helpText = ""
	if m.showHelp {
		m.helpText = renderHelp(m.width, m.cfg.UI.NoColor)
	}
}

func (m Model) canvasRows() int {
	return max(m.height-headerRows-footerRows, 1)
}

// View draws the header, the graph, the progress bar and the status line.
func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteByte('\n')
	if m.showHelp {
		b.WriteString(lipgloss.Place(m.width, m.canvasRows(), lipgloss.Center, lipgloss.Center,
			m.theme.Help.Render(m.helpText)))
	} else {
		b.WriteString(m.drawGraph().Render(m.theme.Cells))
	}
	b.WriteByte('\n')
	b.WriteString(m.bar.ViewAs(m.progress))
	b.WriteByte('\n')
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) header() string {
	state := "running"
	if !m.enabled {
		state = "paused"
	}
	t := m.router.Transform()
	line := fmt.Sprintf("forcegraph  %d nodes  %d edges  %s  zoom %.2fx", len(m.nodes), len(m.edges), state, t.K)
	return m.theme.Title.Render(fit(line, m.width))
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.theme.Error.Render(fit("error: "+m.err.Error(), m.width))
	}
	line := m.status
	if line == "" {
		line = "? help  q quit"
	}
	if n := m.router.ActiveNode(); n != model.NoNode {
		line = fmt.Sprintf("node %d  %d neighbours  |  %s", n, len(m.neighbours[n]), line)
	}
	return m.theme.Status.Render(fit(line, m.width))
}

// drawGraph paints the latest tick, highlighting the active node's neighbours.
func (m Model) drawGraph() *Canvas {
	c := NewCanvas(m.width, m.canvasRows())
	surface := m.router.Surface()
	local := func(n model.Node) r2.Vec {
		return surface.Local(m.router.ToScreen(r2.Vec{X: n.X, Y: n.Y}))
	}
	k := m.router.Transform().K

	active := m.router.ActiveNode()
	lit := map[int]bool{}
	if active != model.NoNode {
		for _, nb := range m.neighbours[active] {
			lit[nb] = true
		}
	}

	valid, _ := model.ValidateEdges(m.edges, len(m.nodes))
	for _, e := range valid {
		kind := cellEdge
		if active != model.NoNode && (e.Source == active || e.Target == active) {
			kind = cellEdgeLit
		}
		c.Line(local(m.nodes[e.Source]), local(m.nodes[e.Target]), kind)
	}

	for _, n := range m.nodes {
		kind := cellNode
		switch {
		case n.ID == active:
			kind = cellActive
		case n.Pinned():
			kind = cellPinned
		case lit[n.ID]:
			kind = cellNodeLit
		}
		c.Disc(local(n), n.R*k, kind)
	}
	return c
}

// fit truncates s to width cells and pads it to exactly width.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillRight(s, width)
}
