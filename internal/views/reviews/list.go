// Package reviews renders the pending review queue and the detail pane of
// an opened review.
package reviews

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/review"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// List is the pending queue with a cursor.
type List struct {
	Items   []client.Review
	Cursor  int
	Loading bool
	Err     error

	spinner spinner.Model
}

// NewList creates an empty list.
func NewList() List {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorAccent)
	return List{spinner: sp}
}

// Set applies a queue snapshot. The cursor follows the item it pointed at
// when that item is still pending.
func (l *List) Set(snap review.Snapshot) {
	var current string
	if r := l.Current(); r != nil {
		current = r.ID
	}
	l.Items = snap.Pending
	l.Loading = snap.Loading
	l.Err = snap.Err

	l.Cursor = min(l.Cursor, max(len(l.Items)-1, 0))
	for i, r := range l.Items {
		if r.ID == current {
			l.Cursor = i
			break
		}
	}
}

// Current returns the item under the cursor, or nil.
func (l List) Current() *client.Review {
	if l.Cursor < 0 || l.Cursor >= len(l.Items) {
		return nil
	}
	r := l.Items[l.Cursor]
	return &r
}

// Next moves the cursor down, wrapping.
func (l *List) Next() {
	if len(l.Items) > 0 {
		l.Cursor = (l.Cursor + 1) % len(l.Items)
	}
}

// Prev moves the cursor up, wrapping.
func (l *List) Prev() {
	if len(l.Items) > 0 {
		l.Cursor = (l.Cursor - 1 + len(l.Items)) % len(l.Items)
	}
}

// Tick starts the loading spinner.
func (l List) Tick() tea.Cmd {
	return l.spinner.Tick
}

// Update advances the spinner.
func (l List) Update(msg tea.Msg) (List, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

// View renders the list panel.
func (l List) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	title := theme.StyleHeader.Render("REVIEWS")
	if l.Loading {
		title += " " + l.spinner.View()
	}

	lines := []string{title}
	if l.Err != nil {
		lines = append(lines, theme.StyleError.Render(truncate(l.Err.Error(), innerW-2)))
	}
	if len(l.Items) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("Nothing awaiting review."))
	}

	visible := max(height-4-len(lines), 1)
	start := max(0, l.Cursor-visible+1)
	for i := start; i < len(l.Items) && i < start+visible; i++ {
		r := l.Items[i]
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == l.Cursor {
			prefix = "> "
			style = theme.StyleSelected
		}
		label := fmt.Sprintf("%s  %s", r.ReviewType, shortID(r.ID))
		age := theme.StyleDimmed.Render(since(r.CreatedAt))
		lines = append(lines, prefix+style.Render(truncate(label, innerW-12))+"  "+age)
	}

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func since(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
