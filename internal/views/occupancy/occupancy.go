// Package occupancy renders the lot fill gauge. The bar eases toward each
// new reading on a spring so jumps stay readable.
package occupancy

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/theme"
)

const (
	fps       = 30
	settleEps = 0.05
)

// FrameMsg advances the gauge animation by one frame.
type FrameMsg struct{}

// Model is the gauge. Percentages are in [0, 100].
type Model struct {
	Width int

	current int
	total   int
	target  float64
	pos     float64
	vel     float64
	spring  harmonica.Spring
}

// New creates an empty gauge.
func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.8)}
}

// SetReading sets the gauge target. The returned command starts the
// animation when the bar has to move.
func (m *Model) SetReading(o client.Occupancy) tea.Cmd {
	wasAnimating := m.Animating()
	m.current, m.total = o.Current, o.Total
	m.target = 0
	if o.Total > 0 {
		m.target = math.Min(100, float64(o.Current)*100/float64(o.Total))
	}
	if wasAnimating || !m.Animating() {
		return nil
	}
	return frame()
}

// Animating reports whether the bar has not settled on its target.
func (m Model) Animating() bool {
	return math.Abs(m.pos-m.target) > settleEps || math.Abs(m.vel) > settleEps
}

// Update steps the spring on FrameMsg.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok {
		return m, nil
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if !m.Animating() {
		m.pos, m.vel = m.target, 0
		return m, nil
	}
	return m, frame()
}

// Target returns the percentage the gauge is heading to.
func (m Model) Target() float64 { return m.target }

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// View renders the gauge on one line.
func (m Model) View() string {
	width := max(m.Width, 40)
	label := fmt.Sprintf(" %d / %d  %5.1f%%", m.current, m.total, m.target)
	barW := max(width-len(label)-14, 10)

	filled := int(math.Round(math.Max(0, math.Min(100, m.pos)) / 100 * float64(barW)))
	color := theme.OccupancyColor(m.target)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", barW-filled))

	title := theme.StyleHeader.Render("Occupancy ")
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(title + bar + lipgloss.NewStyle().Foreground(color).Render(label))
}
