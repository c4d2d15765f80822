package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected  bool
	Operator   string
	Unresolved int
	SyncedAt   time.Time
	LastError  string
	Width      int

	now func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var conn string
	if m.Connected {
		conn = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	} else {
		conn = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Offline")
	}

	parts := []string{conn}
	if m.Operator != "" {
		parts = append(parts, theme.StyleHeader.Render(m.Operator))
	}

	badge := theme.StyleDimmed.Render("0 open alerts")
	if m.Unresolved > 0 {
		badge = lipgloss.NewStyle().Foreground(theme.ColorCritical).Bold(true).
			Render(fmt.Sprintf("%d open alerts", m.Unresolved))
	}
	parts = append(parts, badge)

	parts = append(parts, theme.StyleDimmed.Render("synced "+m.syncedAge()))
	if m.LastError != "" {
		parts = append(parts, theme.StyleError.Render(m.LastError))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := strings.Join(parts, sep)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) syncedAge() string {
	if m.SyncedAt.IsZero() {
		return "never"
	}
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	d := now().Sub(m.SyncedAt)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return m.SyncedAt.Format("15:04")
	}
}
