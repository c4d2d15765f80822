// Package feed renders the gate event tables: the live pushed feed and the
// pulled event log, with a plate search, a decision filter and the daily
// counters shown above them.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/theme"
)

// Mode selects which table is shown.
type Mode int

const (
	ModeLive Mode = iota
	ModeLog
)

const (
	colTime     = 10
	colPlate    = 12
	colGate     = 6
	colKind     = 10
	colDecision = 10
)

// decisionCycle is the order CycleDecision steps through; "" shows all.
var decisionCycle = []client.Decision{"", client.DecisionAllow, client.DecisionDeny, client.DecisionAlert}

// Model holds the feed view state.
type Model struct {
	Width  int
	Height int
	Mode   Mode
	// Decision limits the event log to one decision; empty shows all.
	Decision client.Decision

	search    textinput.Model
	searching bool
	live      []client.GateEvent
	log       []client.ParkingEvent
	now       func() time.Time
}

// New creates an empty feed in live mode.
func New() Model {
	in := textinput.New()
	in.Prompt = "  / "
	in.Placeholder = "search plate"
	in.CharLimit = 16
	return Model{search: in, now: time.Now}
}

// SetEvents replaces the rows for both modes.
func (m *Model) SetEvents(live []client.GateEvent, log []client.ParkingEvent) {
	m.live = live
	m.log = log
}

// Toggle switches between the live feed and the event log.
func (m *Model) Toggle() {
	if m.Mode == ModeLive {
		m.Mode = ModeLog
	} else {
		m.Mode = ModeLive
	}
}

// StartSearch opens the plate search on the event log.
func (m *Model) StartSearch() tea.Cmd {
	m.Mode = ModeLog
	m.searching = true
	return m.search.Focus()
}

// Searching reports whether keys go to the search field.
func (m Model) Searching() bool {
	return m.searching
}

// Query returns the plate search text.
func (m Model) Query() string {
	return strings.TrimSpace(m.search.Value())
}

// Update edits the search field. Enter keeps the query and esc drops it;
// both hand the keys back to the dashboard.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.searching {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyEnter:
			m.searching = false
			m.search.Blur()
			return m, nil
		case tea.KeyEsc:
			m.searching = false
			m.search.Blur()
			m.search.Reset()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

// CycleDecision steps the event log filter through all, allow, deny and
// alert.
func (m *Model) CycleDecision() {
	m.Mode = ModeLog
	for i, d := range decisionCycle {
		if d == m.Decision {
			m.Decision = decisionCycle[(i+1)%len(decisionCycle)]
			return
		}
	}
	m.Decision = ""
}

// Filtered returns the event log rows matching the plate search and the
// decision filter. Plates match case-insensitively on any substring.
func (m Model) Filtered() []client.ParkingEvent {
	q := strings.ToUpper(m.Query())
	if q == "" && m.Decision == "" {
		return m.log
	}
	out := make([]client.ParkingEvent, 0, len(m.log))
	for _, e := range m.log {
		if q != "" && !strings.Contains(strings.ToUpper(e.Plate), q) {
			continue
		}
		if m.Decision != "" && e.Decision != m.Decision {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Counters are the daily figures shown above the tables.
type Counters struct {
	Entries int
	Denied  int
}

// Today counts the pulled events stamped on the current local day.
func (m Model) Today() Counters {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	y, mo, d := now().Local().Date()
	var c Counters
	for _, e := range m.log {
		ey, emo, ed := e.Timestamp.Local().Date()
		if ey != y || emo != mo || ed != d {
			continue
		}
		if e.EventType == client.EventEntry {
			c.Entries++
		}
		if e.Decision == client.DecisionDeny {
			c.Denied++
		}
	}
	return c
}

// CountersView renders the daily figures on one line.
func (m Model) CountersView() string {
	c := m.Today()
	label := theme.StyleDimmed
	return fmt.Sprintf("  %s %s   %s %s",
		label.Render("Today's entries"),
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprint(c.Entries)),
		label.Render("Denied today"),
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDeny).Render(fmt.Sprint(c.Denied)))
}

// View renders the active table, at most Height rows.
func (m Model) View() string {
	limit := max(m.Height, 3)
	dim := lipgloss.NewStyle().Foreground(theme.ColorDimmed)

	var header, empty string
	var lines, rows []string
	switch m.Mode {
	case ModeLog:
		events := m.Filtered()
		count := fmt.Sprint(len(m.log))
		if len(events) != len(m.log) {
			count = fmt.Sprintf("%d of %d", len(events), len(m.log))
		}
		header = theme.StyleHeader.Render(fmt.Sprintf("  Event log (%s)", count)) +
			dim.Render("   e: live feed  /: search  f: filter") + m.filterLabel()
		empty = "  No events pulled yet"
		if len(m.log) > 0 {
			empty = "  No events match"
		}
		if m.searching || m.Query() != "" {
			lines = append(lines, m.search.View())
			limit = max(limit-1, 1)
		}
		lines = append(lines, dim.Render(fmt.Sprintf("  %-*s %-*s %-*s %-*s %-*s %s",
			colTime, "Time", colPlate, "Plate", colGate, "Gate", colKind, "Type", colDecision, "Decision", "OCR")))
		for _, e := range events[:min(limit, len(events))] {
			rows = append(rows, logRow(e))
		}
	default:
		header = theme.StyleHeader.Render(fmt.Sprintf("  Live gate events (%d)", len(m.live))) +
			dim.Render("   e: event log  c: clear")
		empty = "  Waiting for gate events"
		lines = append(lines, dim.Render(fmt.Sprintf("  %-*s %-*s %-*s %-*s",
			colTime, "Time", colPlate, "Plate", colGate, "Gate", colDecision, "Decision")))
		for _, e := range m.live[:min(limit, len(m.live))] {
			rows = append(rows, liveRow(e))
		}
	}

	if len(rows) == 0 {
		rows = append(rows, theme.StyleDimmed.Render(empty))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append(append([]string{header}, lines...), rows...)...)
}

func (m Model) filterLabel() string {
	if m.Decision == "" {
		return ""
	}
	return "  " + decision(string(m.Decision)) + " only"
}

func liveRow(e client.GateEvent) string {
	return fmt.Sprintf("  %-*s %s %-*s %s",
		colTime, clock(e.Timestamp),
		lipgloss.NewStyle().Bold(true).Width(colPlate).Render(e.Plate),
		colGate, e.Gate,
		decision(string(e.Decision)))
}

func logRow(e client.ParkingEvent) string {
	ocr := "-"
	if e.OCRConfidence != nil {
		ocr = fmt.Sprintf("%.0f%%", *e.OCRConfidence*100)
	}
	return fmt.Sprintf("  %-*s %s %-*s %-*s %s %s",
		colTime, clock(e.Timestamp),
		lipgloss.NewStyle().Bold(true).Width(colPlate).Render(e.Plate),
		colGate, e.GateID,
		colKind, string(e.EventType),
		lipgloss.NewStyle().Width(colDecision).Render(decision(string(e.Decision))),
		ocr)
}

func decision(d string) string {
	if d == "" {
		return theme.StyleDimmed.Render("-")
	}
	return lipgloss.NewStyle().Foreground(theme.DecisionColor(d)).
		Render(theme.DecisionGlyph(d) + " " + strings.ToUpper(d))
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}
