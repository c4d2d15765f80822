// Package theme provides the Lip Gloss color palette and reusable styles
// for the parkwatch console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Gate decision colors.
var (
	ColorAllow = lipgloss.Color("#22c55e")
	ColorDeny  = lipgloss.Color("#dc2626")
	ColorAlert = lipgloss.Color("#f59e0b")
)

// Alert severity colors.
var (
	ColorCritical = lipgloss.Color("#ef4444")
	ColorHigh     = lipgloss.Color("#f97316")
	ColorMedium   = lipgloss.Color("#eab308")
	ColorLow      = lipgloss.Color("#3b82f6")
)

// Occupancy thresholds.
var (
	ColorOccupancyLow  = lipgloss.Color("#22c55e") // <70%
	ColorOccupancyMid  = lipgloss.Color("#d97706") // 70-90%
	ColorOccupancyHigh = lipgloss.Color("#dc2626") // >90%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#7c3aed")
	ColorDefault = lipgloss.Color("#9ca3af")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// DecisionColor returns the color for a gate decision.
func DecisionColor(decision string) lipgloss.Color {
	switch decision {
	case "allow":
		return ColorAllow
	case "deny":
		return ColorDeny
	case "alert":
		return ColorAlert
	default:
		return ColorDefault
	}
}

// DecisionGlyph returns a short marker for a gate decision.
func DecisionGlyph(decision string) string {
	switch decision {
	case "allow":
		return "✓"
	case "deny":
		return "✗"
	case "alert":
		return "!"
	default:
		return "·"
	}
}

// SeverityColor returns the color for an alert severity.
func SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical":
		return ColorCritical
	case "high":
		return ColorHigh
	case "medium":
		return ColorMedium
	case "low":
		return ColorLow
	default:
		return ColorDefault
	}
}

// SeverityBadge renders a fixed-width colored severity label.
func SeverityBadge(severity string) string {
	label := severity
	if label == "" {
		label = "?"
	}
	return lipgloss.NewStyle().
		Foreground(SeverityColor(severity)).
		Bold(severity == "critical").
		Width(8).
		Render(label)
}

// OccupancyColor returns the color for a fill percentage in [0, 100].
func OccupancyColor(pct float64) lipgloss.Color {
	switch {
	case pct > 90:
		return ColorOccupancyHigh
	case pct > 70:
		return ColorOccupancyMid
	default:
		return ColorOccupancyLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// Panel returns the shared overlay frame.
func Panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder)
}
