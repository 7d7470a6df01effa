package status

import (
	"fmt"

	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the status bar state.
type Model struct {
	State   stream.State
	Target  string
	Attempt int
	Pending int
	Width   int
}

// New creates a status bar model.
func New() Model {
	return Model{State: stream.StateDisconnected}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	connStyle := lipgloss.NewStyle().Foreground(theme.ConnectionColor(string(m.State)))
	var connStr string
	switch m.State {
	case stream.StateConnected:
		connStr = connStyle.Render("● Connected")
	case stream.StateConnecting:
		connStr = connStyle.Render("◌ Connecting...")
	case stream.StateError:
		connStr = connStyle.Render("✗ Error")
	default:
		connStr = connStyle.Render("○ Disconnected")
	}

	target := m.Target
	if target == "" {
		target = "no project"
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + theme.StyleHeader.Render(target)
	if m.Attempt > 0 {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("retry #%d", m.Attempt))
	}
	reviews := fmt.Sprintf("%d pending review", m.Pending)
	if m.Pending != 1 {
		reviews += "s"
	}
	if m.Pending > 0 {
		reviews = lipgloss.NewStyle().Foreground(theme.ColorReview).Render(reviews)
	}
	content += sep + reviews

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
