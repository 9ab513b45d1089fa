package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorText    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"}
)

// Theme holds the styles the graph view renders with.
type Theme struct {
	Title  lipgloss.Style
	Status lipgloss.Style
	Error  lipgloss.Style
	Help   lipgloss.Style
	Cells  map[cellKind]lipgloss.Style
}

// DefaultTheme returns the coloured theme, or an unstyled one when noColor is set.
func DefaultTheme(noColor bool) Theme {
	if noColor {
		plain := lipgloss.NewStyle()
		return Theme{
			Title:  plain.Bold(true),
			Status: plain,
			Error:  plain,
			Help:   plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
			Cells:  map[cellKind]lipgloss.Style{},
		}
	}
	return Theme{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
		Status: lipgloss.NewStyle().Foreground(ColorMuted),
		Error:  lipgloss.NewStyle().Foreground(ColorDanger),
		Help: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		Cells: map[cellKind]lipgloss.Style{
			cellEdge:    lipgloss.NewStyle().Foreground(ColorMuted),
			cellEdgeLit: lipgloss.NewStyle().Foreground(ColorWarning),
			cellNode:    lipgloss.NewStyle().Foreground(ColorInfo),
			cellNodeLit: lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
			cellPinned:  lipgloss.NewStyle().Foreground(ColorDanger).Bold(true),
			cellActive:  lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		},
	}
}
