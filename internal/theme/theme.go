// Package theme provides the Lip Gloss color palette and reusable styles
// for aiden-watch. It is a leaf package with no internal imports to avoid
// import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Run status colors.
var (
	ColorIdle      = lipgloss.Color("#4b5563")
	ColorRunning   = lipgloss.Color("#2563eb")
	ColorWaiting   = lipgloss.Color("#d97706")
	ColorCompleted = lipgloss.Color("#16a34a")
	ColorErrored   = lipgloss.Color("#dc2626")
)

// Event kind colors used by the log.
var (
	ColorStage  = lipgloss.Color("#7c3aed")
	ColorReview = lipgloss.Color("#f59e0b")
	ColorOther  = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#06b6d4")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a run status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return ColorRunning
	case "waiting_for_review":
		return ColorWaiting
	case "completed":
		return ColorCompleted
	case "error":
		return ColorErrored
	default:
		return ColorIdle
	}
}

// StatusGlyph returns a Unicode glyph for a run status string.
func StatusGlyph(status string) string {
	switch status {
	case "running":
		return "●>"
	case "waiting_for_review":
		return "◌"
	case "completed":
		return "✓"
	case "error":
		return "✗"
	default:
		return "○"
	}
}

// ConnectionColor returns the color for a connection state string.
func ConnectionColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorHealthy
	case "connecting":
		return ColorWarning
	case "error":
		return ColorDanger
	default:
		return ColorDimmed
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
		Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
