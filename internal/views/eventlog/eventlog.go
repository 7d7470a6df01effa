// Package eventlog provides the scrollable run log panel.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/eventstore"
	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

const maxEntries = progress.LogCapacity

// Model holds the log panel state. Entries are oldest first.
type Model struct {
	Entries []progress.LogEntry
	Offset  int // scroll offset (from bottom)
}

// New creates an empty log model.
func New() Model {
	return Model{}
}

// Set replaces the entries from a newest-first aggregator log. The scroll
// position snaps back to the bottom when new lines arrived.
func (m *Model) Set(log []progress.LogEntry) {
	grew := len(log) == 0 || len(m.Entries) == 0 || log[0] != m.Entries[len(m.Entries)-1]

	entries := make([]progress.LogEntry, 0, min(len(log), maxEntries))
	for i := min(len(log), maxEntries) - 1; i >= 0; i-- {
		entries = append(entries, log[i])
	}
	m.Entries = entries

	if grew {
		m.Offset = 0
	}
	m.clamp()
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	m.clamp()
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) clamp() {
	limit := len(m.Entries) - 1
	if limit < 0 {
		limit = 0
	}
	if m.Offset > limit {
		m.Offset = limit
	}
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as a panel of the given outer size.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 4
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render("EVENTS") +
		theme.StyleDimmed.Render(fmt.Sprintf("  %d", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("No events recorded yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	end := len(m.Entries) - m.Offset
	start := end - visibleLines
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	var lines []string
	for i := start; i < end; i++ {
		e := m.Entries[i]
		tsStr := theme.StyleDimmed.Render(formatTime(e.Timestamp))
		kindStr := lipgloss.NewStyle().Foreground(kindToColor(e.EventType)).Width(16).Render(short(e.EventType, 16))
		msg := e.Message
		if e.Stage != "" && e.Stage != msg {
			msg = e.Stage + ": " + msg
		}
		if room := innerW - 32; room > 3 && len(msg) > room {
			msg = msg[:room-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", tsStr, kindStr, msg))
	}

	sections := []string{title, strings.Join(lines, "\n")}
	if m.Offset > 0 {
		sections = append(sections, theme.StyleDimmed.Render(fmt.Sprintf("↓ %d more", m.Offset)))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func formatTime(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Local().Format("15:04:05")
	}
	return short(ts, 8)
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func kindToColor(eventType string) lipgloss.Color {
	switch eventstore.Canonical(eventType) {
	case eventstore.RunStarted, eventstore.RunCompleted:
		return theme.ColorCompleted
	case eventstore.StageEntered:
		return theme.ColorStage
	case eventstore.ReviewRequested, eventstore.ReviewResolved:
		return theme.ColorReview
	case eventstore.RunError:
		return theme.ColorErrored
	default:
		return theme.ColorOther
	}
}
