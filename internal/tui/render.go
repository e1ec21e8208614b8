package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/world"
)

// Glyphs indexed by encoding cell state.
var glyphs = [...]string{
	encoding.CellEmpty:  " ",
	encoding.CellDead:   "x",
	encoding.CellLow:    ".",
	encoding.CellMedium: "o",
	encoding.CellHigh:   "@",
}

// Styles colours each cell state plus the status bar.
type Styles struct {
	Cells  [len(glyphs)]lipgloss.Style
	Status lipgloss.Style
	Paused lipgloss.Style
	Help   lipgloss.Style
}

func DefaultStyles() Styles {
	var s Styles
	s.Cells[encoding.CellEmpty] = lipgloss.NewStyle()
	s.Cells[encoding.CellDead] = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	s.Cells[encoding.CellLow] = lipgloss.NewStyle().Foreground(lipgloss.Color("#E67E22"))
	s.Cells[encoding.CellMedium] = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1C40F"))
	s.Cells[encoding.CellHigh] = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")).Bold(true)
	s.Status = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#3C3C3C"))
	s.Paused = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true)
	s.Help = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return s
}

// PlainStyles renders bare glyphs, used by tests and dumb terminals.
func PlainStyles() Styles {
	var s Styles
	for i := range s.Cells {
		s.Cells[i] = lipgloss.NewStyle()
	}
	s.Status = lipgloss.NewStyle()
	s.Paused = lipgloss.NewStyle()
	s.Help = lipgloss.NewStyle()
	return s
}

// Render paints the part of f visible through cam in a viewW x viewH window.
// Rows past the world edge are left out; it never pads beyond the grid.
func Render(f world.Frame, cam Camera, viewW, viewH int, bands encoding.Bands, st Styles) string {
	cam = cam.Clamp(f.Width, f.Height, viewW, viewH)
	w := min(viewW, f.Width-cam.X)
	h := min(viewH, f.Height-cam.Y)
	if w <= 0 || h <= 0 {
		return ""
	}

	var b strings.Builder
	var run strings.Builder
	for y := cam.Y; y < cam.Y+h; y++ {
		if y > cam.Y {
			b.WriteByte('\n')
		}
		// Consecutive cells of one state share a single styled span.
		cur := uint16(0)
		run.Reset()
		for x := cam.X; x < cam.X+w; x++ {
			c := f.At(x, y)
			state := bands.Classify(c.ID != "", c.Alive, c.Energy)
			if run.Len() > 0 && state != cur {
				b.WriteString(st.Cells[cur].Render(run.String()))
				run.Reset()
			}
			cur = state
			run.WriteString(glyphs[state])
		}
		if run.Len() > 0 {
			b.WriteString(st.Cells[cur].Render(run.String()))
		}
	}
	return b.String()
}

// StatusLine is the fixed-format bar under the grid.
func StatusLine(f world.Frame, cam Camera, paused bool) string {
	s := fmt.Sprintf("tick %d | gen %d | alive %d/%d | cam (%d,%d)",
		f.Tick, f.Generation, f.Alive, f.Total, cam.X, cam.Y)
	if paused {
		s += " | PAUSED"
	}
	return s
}
