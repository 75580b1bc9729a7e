package viz

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Chart plots the trace as one line per body. It returns "" until at least two
// ticks are recorded.
func Chart(t *Trace, width, height int) string {
	infant, chamber, room := t.Series()
	if len(infant) < 2 {
		return ""
	}
	return asciigraph.PlotMany([][]float64{infant, chamber, room},
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Blue, asciigraph.Default),
		asciigraph.SeriesLegends("infant", "chamber", "room"),
		asciigraph.Caption("temperature (K)"),
	)
}

// Styles for run summaries. Colors are dropped when the writer is not a
// terminal.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Panel lipgloss.Style
}

func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ccff")),
		Label: r.NewStyle().Foreground(lipgloss.Color("#888899")),
		Value: r.NewStyle().Bold(true),
		Panel: r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 1),
	}
}
