package reviews

import (
	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Detail shows one opened review in a scrollable viewport.
type Detail struct {
	Review   *client.Review
	viewport viewport.Model
	ready    bool
}

// NewDetail creates an empty detail pane.
func NewDetail() Detail {
	return Detail{}
}

// Open renders r into the pane.
func (d *Detail) Open(r *client.Review, width, height int) {
	d.Review = r
	d.Resize(width, height)
	d.viewport.GotoTop()
}

// Close clears the pane.
func (d *Detail) Close() {
	d.Review = nil
}

// Resize lays the pane out again for a new size.
func (d *Detail) Resize(width, height int) {
	w, h := max(width-4, 20), max(height-4, 3)
	if !d.ready {
		d.viewport = viewport.New(w, h)
		d.ready = true
	} else {
		d.viewport.Width = w
		d.viewport.Height = h
	}
	if d.Review != nil {
		d.viewport.SetContent(Render(Markdown(*d.Review), w-2))
	}
}

// Update forwards scroll keys to the viewport.
func (d Detail) Update(msg tea.Msg) (Detail, tea.Cmd) {
	var cmd tea.Cmd
	d.viewport, cmd = d.viewport.Update(msg)
	return d, cmd
}

// View renders the pane.
func (d Detail) View() string {
	if d.Review == nil {
		return ""
	}
	help := theme.StyleDimmed.Render("a:approve  x:reject  v:revise  esc:close")
	return lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorAccent).
		Render(lipgloss.JoinVertical(lipgloss.Left, d.viewport.View(), help))
}
