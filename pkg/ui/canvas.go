package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/spatial/r2"
)

// Terminal cells are treated as 8x16 pixel boxes so the interaction layer can
// keep working in square pixel units.
const (
	cellW = 8.0
	cellH = 16.0
)

// cellKind is what occupies a canvas cell. Higher kinds paint over lower ones.
type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellEdge
	cellEdgeLit
	cellNode
	cellNodeLit
	cellPinned
	cellActive
)

var glyphs = [...]rune{
	cellEmpty:   ' ',
	cellEdge:    '·',
	cellEdgeLit: '•',
	cellNode:    '●',
	cellNodeLit: '●',
	cellPinned:  '◆',
	cellActive:  '◉',
}

// Canvas is a grid of cells addressed by column and row.
type Canvas struct {
	cols, rows int
	cells      []cellKind
}

// NewCanvas returns an empty canvas.
func NewCanvas(cols, rows int) *Canvas {
	cols, rows = max(cols, 0), max(rows, 0)
	return &Canvas{cols: cols, rows: rows, cells: make([]cellKind, cols*rows)}
}

// At returns the kind painted at col, row.
func (c *Canvas) At(col, row int) cellKind {
	if col < 0 || row < 0 || col >= c.cols || row >= c.rows {
		return cellEmpty
	}
	return c.cells[row*c.cols+col]
}

func (c *Canvas) paint(col, row int, k cellKind) {
	if col < 0 || row < 0 || col >= c.cols || row >= c.rows {
		return
	}
	if i := row*c.cols + col; k > c.cells[i] {
		c.cells[i] = k
	}
}

// cellOf maps a canvas-local pixel position to its cell.
func cellOf(p r2.Vec) (col, row int) {
	return int(math.Floor(p.X / cellW)), int(math.Floor(p.Y / cellH))
}

// Line paints a segment between two canvas-local pixel positions.
func (c *Canvas) Line(a, b r2.Vec, k cellKind) {
	c0, r0 := cellOf(a)
	c1, r1 := cellOf(b)
	steps := max(abs(c1-c0), abs(r1-r0))
	if steps == 0 {
		c.paint(c0, r0, k)
		return
	}
	// Skip far-off segments rather than walking millions of cells.
	if steps > 4*(c.cols+c.rows) {
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		col := int(math.Round(float64(c0) + t*float64(c1-c0)))
		row := int(math.Round(float64(r0) + t*float64(r1-r0)))
		c.paint(col, row, k)
	}
}

// Disc paints every cell whose centre lies within r pixels of centre, and
// always the cell holding centre itself.
func (c *Canvas) Disc(centre r2.Vec, r float64, k cellKind) {
	col, row := cellOf(centre)
	c.paint(col, row, k)
	if r < cellW/2 {
		return
	}
	minC, maxC := int(math.Floor((centre.X-r)/cellW)), int(math.Floor((centre.X+r)/cellW))
	minR, maxR := int(math.Floor((centre.Y-r)/cellH)), int(math.Floor((centre.Y+r)/cellH))
	minC, maxC = max(minC, 0), min(maxC, c.cols-1)
	minR, maxR = max(minR, 0), min(maxR, c.rows-1)
	for y := minR; y <= maxR; y++ {
		for x := minC; x <= maxC; x++ {
			mid := r2.Vec{X: (float64(x) + 0.5) * cellW, Y: (float64(y) + 0.5) * cellH}
			if r2.Norm(r2.Sub(mid, centre)) <= r {
				c.paint(x, y, k)
			}
		}
	}
}

// Render draws the canvas using styles, one line per row.
func (c *Canvas) Render(styles map[cellKind]lipgloss.Style) string {
	var b strings.Builder
	for row := 0; row < c.rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		// Runs of the same kind share one styled span.
		start := 0
		for col := 1; col <= c.cols; col++ {
			if col < c.cols && c.At(col, row) == c.At(start, row) {
				continue
			}
			k := c.At(start, row)
			run := strings.Repeat(string(glyphs[k]), col-start)
			if st, ok := styles[k]; ok && k != cellEmpty {
				run = st.Render(run)
			}
			b.WriteString(run)
			start = col
		}
	}
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
