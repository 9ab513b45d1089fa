package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# forcegraph

| Key | Action |
|-----|--------|
| drag node | pin it under the pointer; release frees it |
| drag background | pan |
| wheel | zoom around the pointer |
| double click, ` + "`r`" + ` | reset the view |
| ` + "`space`" + ` | pause or resume the simulation |
| ` + "`y`" + ` | copy node positions as JSON |
| ` + "`?`" + ` | toggle this help |
| ` + "`q`" + ` | quit |
`

// renderHelp renders the key reference with glamour, falling back to the raw
// markdown if rendering fails.
func renderHelp(width int, noColor bool) string {
	style := glamour.WithAutoStyle()
	if noColor {
		style = glamour.WithStandardStyle("ascii")
	}
	wrap := max(width-8, 20)
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}

	// Glamour pads with blank lines; keep at most one in a row.
	var lines []string
	blank := false
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		lines = append(lines, line)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
