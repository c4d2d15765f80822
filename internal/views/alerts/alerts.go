// Package alerts renders the alerts overlay: the active and resolved
// lists and a markdown detail pane for the selected alert.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/theme"
)

// Tab selects the active or the resolved list.
type Tab int

const (
	TabActive Tab = iota
	TabHistory
)

func (t Tab) String() string {
	if t == TabHistory {
		return "History"
	}
	return "Active"
}

// Model holds the overlay state.
type Model struct {
	Width  int
	Height int
	Tab    Tab
	Detail bool
	// Style is a glamour standard style name.
	Style string
	// Busy names the alert id being resolved.
	Busy string
	Err  string
	// Severity limits both tabs to one severity; empty shows all.
	Severity client.Severity

	all      []client.Alert
	selected int
}

// severityCycle is the order CycleSeverity steps through; "" shows all.
var severityCycle = []client.Severity{"", client.SeverityCritical, client.SeverityHigh, client.SeverityMedium, client.SeverityLow}

// New creates an empty overlay on the active tab.
func New() Model {
	return Model{Style: "dark"}
}

// SetAlerts replaces the alert list, keeping the selection on the same id
// when it is still visible.
func (m *Model) SetAlerts(all []client.Alert) {
	cur, had := m.Selected()
	m.all = all
	if had {
		for i, a := range m.Visible() {
			if a.ID == cur.ID {
				m.selected = i
				return
			}
		}
	}
	m.clamp()
}

// Visible returns the alerts on the current tab that pass the severity
// filter, newest first.
func (m Model) Visible() []client.Alert {
	out := make([]client.Alert, 0, len(m.all))
	for _, a := range m.all {
		if a.Resolved != (m.Tab == TabHistory) {
			continue
		}
		if m.Severity != "" && a.Severity != m.Severity {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CycleSeverity steps the filter through all, critical, high, medium and
// low, keeping the selection on the same alert when it still shows.
func (m *Model) CycleSeverity() {
	next := client.Severity("")
	for i, s := range severityCycle {
		if s == m.Severity {
			next = severityCycle[(i+1)%len(severityCycle)]
			break
		}
	}
	cur, had := m.Selected()
	m.Severity = next
	m.Detail = false
	m.selected = 0
	if had {
		for i, a := range m.Visible() {
			if a.ID == cur.ID {
				m.selected = i
			}
		}
	}
}

// Selected returns the highlighted alert.
func (m Model) Selected() (client.Alert, bool) {
	vis := m.Visible()
	if m.selected < 0 || m.selected >= len(vis) {
		return client.Alert{}, false
	}
	return vis[m.selected], true
}

func (m *Model) Up() {
	if m.selected > 0 {
		m.selected--
	}
}

func (m *Model) Down() {
	if m.selected < len(m.Visible())-1 {
		m.selected++
	}
}

// ToggleTab flips between the active and resolved lists.
func (m *Model) ToggleTab() {
	if m.Tab == TabActive {
		m.Tab = TabHistory
	} else {
		m.Tab = TabActive
	}
	m.selected = 0
	m.Detail = false
}

func (m *Model) clamp() {
	m.selected = max(0, min(m.selected, len(m.Visible())-1))
}

// View renders the overlay.
func (m Model) View() string {
	innerW := max(m.Width-4, 40)
	title := theme.StyleHeader.Render(fmt.Sprintf(" ALERTS · %s ", m.Tab))
	if m.Severity != "" {
		title += " " + theme.SeverityBadge(string(m.Severity)) + theme.StyleDimmed.Render(" only")
	}

	var body string
	if a, ok := m.Selected(); ok && m.Detail {
		body = m.renderDetail(a, innerW-4)
	} else {
		body = m.renderList(max(m.Height-8, 3))
	}

	help := "j/k:select  enter:detail  tab:active/history  s:severity  esc:close"
	if m.Tab == TabActive {
		help = "j/k:select  enter:detail  x:resolve  tab:active/history  s:severity  esc:close"
	}
	parts := []string{title, "", body}
	if m.Err != "" {
		parts = append(parts, "", theme.StyleError.Render(m.Err))
	}
	parts = append(parts, "", theme.StyleDimmed.Render(help))
	return theme.Panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderList(rows int) string {
	vis := m.Visible()
	if len(vis) == 0 {
		if m.Severity != "" {
			return theme.StyleDimmed.Render(fmt.Sprintf("  No %s alerts", m.Severity))
		}
		if m.Tab == TabHistory {
			return theme.StyleDimmed.Render("  No resolved alerts")
		}
		return theme.StyleDimmed.Render("  No open alerts")
	}

	// Keep the selection on screen.
	start := max(0, m.selected-rows+1)
	end := min(len(vis), start+rows)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		a := vis[i]
		prefix := "  "
		if i == m.selected {
			prefix = "> "
		}
		msg := a.Message
		if len(msg) > 48 {
			msg = msg[:47] + "…"
		}
		line := fmt.Sprintf("%s%s %-16s %-10s %s", prefix, theme.SeverityBadge(string(a.Severity)), a.Type, a.Plate, msg)
		if a.ID == m.Busy {
			line += theme.StyleDimmed.Render("  resolving…")
		}
		if i == m.selected {
			line = theme.StyleSelected.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDetail(a client.Alert, wrap int) string {
	md := Markdown(a)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// Markdown describes an alert for the detail pane.
func Markdown(a client.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s · %s\n\n", a.Type, strings.ToUpper(string(a.Severity)))
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	if a.Plate != "" {
		fmt.Fprintf(&b, "- **Plate:** `%s`\n", a.Plate)
	}
	if a.GateID != "" {
		fmt.Fprintf(&b, "- **Gate:** %s\n", a.GateID)
	}
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Raised:** %s\n", a.CreatedAt.Local().Format(time.DateTime))
	}
	if a.Resolved {
		by := a.ResolvedBy
		if by == "" {
			by = "unknown"
		}
		fmt.Fprintf(&b, "- **Resolved by:** %s", by)
		if a.ResolvedAt != nil {
			fmt.Fprintf(&b, " at %s", a.ResolvedAt.Local().Format(time.DateTime))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("- **Status:** open\n")
	}
	fmt.Fprintf(&b, "\n_id %s_\n", a.ID)
	return b.String()
}
