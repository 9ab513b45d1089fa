// Package export renders a laid-out graph to a static SVG or PNG snapshot.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/forcegraph/pkg/debug"
	"github.com/vanderheijden86/forcegraph/pkg/document"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
)

// ErrNoNodes is returned when there is nothing to draw.
var ErrNoNodes = errors.New("no nodes to export")

// SnapshotOptions controls snapshot rendering.
type SnapshotOptions struct {
	Path   string // format inferred from extension when Format is empty
	Format string // "svg" or "png"
	Title  string

	Nodes    []model.Node
	Edges    []model.Edge
	Progress float64

	// Highlight tints a node and its neighbours when set.
	Highlight  *int
	Neighbours neighbors.Map

	Width, Height int // defaults 800x600
}

// SaveSnapshot renders opts to opts.Path.
func SaveSnapshot(opts SnapshotOptions) error {
	start := time.Now()
	defer func() { metrics.SnapshotExport.Record(time.Since(start)) }()

	if len(opts.Nodes) == 0 {
		return ErrNoNodes
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".png":
			format = "png"
		case ".svg":
			format = "svg"
		case "":
			format = "svg"
			opts.Path += ".svg"
		default:
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Path)), ".")
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	sc := buildScene(opts)
	if format == "png" {
		return renderPNG(opts.Path, sc)
	}

	f, err := os.Create(opts.Path)
	if err != nil {
		return err
	}
	if err := renderSVG(f, sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSVG renders opts as SVG to w.
func WriteSVG(w io.Writer, opts SnapshotOptions) error {
	if len(opts.Nodes) == 0 {
		return ErrNoNodes
	}
	return renderSVG(w, buildScene(opts))
}

// Settle runs a fresh simulation of doc to convergence, or for at most
// maxSteps steps, and returns the final tick.
func Settle(doc *document.Document, params layout.Parameters, settings model.Settings, alpha float64, maxSteps int) (layout.Tick, error) {
	defer debug.LogEnterExit("export.Settle")()
	if doc.Settings != nil {
		settings = *doc.Settings
	}
	sim := layout.NewSimulation(params, settings)
	if err := sim.SetNodes(doc.Nodes); err != nil {
		return layout.Tick{}, err
	}
	if err := sim.SetEdges(doc.Edges); err != nil && !errors.Is(err, layout.ErrEdgeEndpoint) {
		return layout.Tick{}, err
	}
	sim.Restart(alpha)
	return sim.Converge(maxSteps), nil
}

// --- scene -----------------------------------------------------------------

const (
	padding      = 24.0
	headerHeight = 72.0
	barHeight    = 6.0
)

type sceneNode struct {
	ID      int
	X, Y, R float64
	Pinned  bool
	Lit     bool
}

type sceneEdge struct {
	X1, Y1, X2, Y2 float64
	Lit            bool
}

type scene struct {
	Width, Height int
	Title         string
	Summary       string
	Progress      float64
	Nodes         []sceneNode
	Edges         []sceneEdge
}

// buildScene fits the graph's bounding box into the drawing area below the
// header, preserving aspect ratio.
func buildScene(opts SnapshotOptions) scene {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range opts.Nodes {
		minX, maxX = math.Min(minX, n.X-n.R), math.Max(maxX, n.X+n.R)
		minY, maxY = math.Min(minY, n.Y-n.R), math.Max(maxY, n.Y+n.R)
	}
	areaW := float64(width) - 2*padding
	areaH := float64(height) - 2*padding - headerHeight
	spanX, spanY := math.Max(maxX-minX, 1), math.Max(maxY-minY, 1)
	scale := math.Min(areaW/spanX, areaH/spanY)
	offX := padding + (areaW-spanX*scale)/2
	offY := padding + headerHeight + (areaH-spanY*scale)/2
	place := func(x, y float64) (float64, float64) {
		return offX + (x-minX)*scale, offY + (y-minY)*scale
	}

	active := model.NoNode
	if opts.Highlight != nil && *opts.Highlight >= 0 && *opts.Highlight < len(opts.Nodes) {
		active = *opts.Highlight
	}
	lit := map[int]bool{}
	if active != model.NoNode {
		lit[active] = true
		for _, nb := range opts.Neighbours[active] {
			lit[nb] = true
		}
	}

	sc := scene{
		Width:    width,
		Height:   height,
		Title:    opts.Title,
		Progress: math.Max(0, math.Min(1, opts.Progress)),
	}
	if strings.TrimSpace(sc.Title) == "" {
		sc.Title = "Force Layout Snapshot"
	}

	for _, n := range opts.Nodes {
		x, y := place(n.X, n.Y)
		sc.Nodes = append(sc.Nodes, sceneNode{
			ID: n.ID, X: x, Y: y, R: math.Max(n.R*scale, 1),
			Pinned: n.Pinned(), Lit: lit[n.ID],
		})
	}

	valid, dropped := model.ValidateEdges(opts.Edges, len(opts.Nodes))
	for _, e := range valid {
		s, t := opts.Nodes[e.Source], opts.Nodes[e.Target]
		x1, y1 := place(s.X, s.Y)
		x2, y2 := place(t.X, t.Y)
		sc.Edges = append(sc.Edges, sceneEdge{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			Lit: active != model.NoNode && (e.Source == active || e.Target == active),
		})
	}

	sc.Summary = fmt.Sprintf("nodes: %d  edges: %d  progress: %.0f%%", len(sc.Nodes), len(sc.Edges), sc.Progress*100)
	if dropped > 0 {
		sc.Summary += fmt.Sprintf("  dropped: %d", dropped)
	}
	return sc
}

// --- rendering -------------------------------------------------------------

var (
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorNode     = color.RGBA{0x9e, 0xc5, 0xe8, 0xff}
	colorLit      = color.RGBA{0xff, 0xb7, 0x4d, 0xff}
	colorPinned   = color.RGBA{0xe5, 0x73, 0x73, 0xff}
	colorStroke   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorEdge     = color.RGBA{0xb0, 0xb7, 0xc3, 0xff}
	colorEdgeLit  = color.RGBA{0xf5, 0x7c, 0x00, 0xff}
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBarTrack = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	colorBar      = color.RGBA{0x43, 0xa0, 0x47, 0xff}
)

func nodeColor(n sceneNode) color.RGBA {
	switch {
	case n.Pinned:
		return colorPinned
	case n.Lit:
		return colorLit
	}
	return colorNode
}

func edgeColor(e sceneEdge) color.RGBA {
	if e.Lit {
		return colorEdgeLit
	}
	return colorEdge
}

func renderPNG(path string, sc scene) error {
	dc := gg.NewContext(sc.Width, sc.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(12, 12, float64(sc.Width)-24, headerHeight-8, 8)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(sc.Title, 28, 34, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(sc.Summary, 28, 54, 0, 0.5)

	barW := float64(sc.Width) - 2*padding
	dc.SetColor(colorBarTrack)
	dc.DrawRectangle(padding, headerHeight+8, barW, barHeight)
	dc.Fill()
	dc.SetColor(colorBar)
	dc.DrawRectangle(padding, headerHeight+8, barW*sc.Progress, barHeight)
	dc.Fill()

	dc.SetLineWidth(1.5)
	for _, e := range sc.Edges {
		dc.SetColor(edgeColor(e))
		dc.DrawLine(e.X1, e.Y1, e.X2, e.Y2)
		dc.Stroke()
	}

	for _, n := range sc.Nodes {
		dc.SetColor(nodeColor(n))
		dc.DrawCircle(n.X, n.Y, n.R)
		dc.Fill()
		dc.SetColor(colorStroke)
		dc.SetLineWidth(1)
		dc.DrawCircle(n.X, n.Y, n.R)
		dc.Stroke()
	}

	return dc.SavePNG(path)
}

func renderSVG(w io.Writer, sc scene) error {
	canvas := svg.New(w)
	canvas.Start(sc.Width, sc.Height)
	canvas.Rect(0, 0, sc.Width, sc.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(12, 12, sc.Width-24, int(headerHeight-8), 8, 8, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(28, 38, sc.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(28, 58, sc.Summary, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	barW := sc.Width - int(2*padding)
	canvas.Rect(int(padding), int(headerHeight+8), barW, int(barHeight), fmt.Sprintf("fill:%s", css(colorBarTrack)))
	canvas.Rect(int(padding), int(headerHeight+8), int(float64(barW)*sc.Progress), int(barHeight), fmt.Sprintf("fill:%s", css(colorBar)))

	for _, e := range sc.Edges {
		canvas.Line(round(e.X1), round(e.Y1), round(e.X2), round(e.Y2),
			fmt.Sprintf("stroke:%s;stroke-width:1.5", css(edgeColor(e))))
	}
	for _, n := range sc.Nodes {
		canvas.Circle(round(n.X), round(n.Y), max(round(n.R), 1),
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", css(nodeColor(n)), css(colorStroke)))
	}

	canvas.End()
	return nil
}

func round(v float64) int {
	return int(math.Round(v))
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
