// Package progressbar renders run status, the current stage and a
// spring-animated completion bar.
package progressbar

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
)

const (
	fps       = 60
	frequency = 6.0
	damping   = 1.0
	epsilon   = 0.05
)

// FrameMsg advances the bar animation by one frame.
type FrameMsg struct{}

// Frame schedules the next animation frame.
func Frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// Model holds the panel state. The displayed position chases Progress.
type Model struct {
	Status   progress.Status
	Stage    string
	Progress int
	Stages   progress.Table

	spring   harmonica.Spring
	pos, vel float64
}

// New creates an idle panel.
func New() Model {
	return Model{
		Status: progress.StatusIdle,
		spring: harmonica.NewSpring(harmonica.FPS(fps), frequency, damping),
	}
}

// Set applies an aggregator snapshot. It reports whether the bar needs
// animation frames to reach the new value.
func (m *Model) Set(snap progress.Snapshot) bool {
	m.Status = snap.Status
	m.Stage = snap.Stage
	m.Progress = snap.Progress
	return !m.Settled()
}

// Animate steps the spring one frame. It reports whether more frames are
// needed.
func (m *Model) Animate() bool {
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, float64(m.Progress))
	if m.Settled() {
		m.pos, m.vel = float64(m.Progress), 0
		return false
	}
	return true
}

// Settled reports whether the displayed position rests on the target.
func (m Model) Settled() bool {
	return math.Abs(m.pos-float64(m.Progress)) < epsilon && math.Abs(m.vel) < epsilon
}

// Position is the currently displayed percentage.
func (m Model) Position() float64 {
	return m.pos
}

// View renders the panel at the given width.
func (m Model) View(width int) string {
	innerW := width - 4
	if innerW < 30 {
		innerW = 30
	}

	color := theme.StatusColor(string(m.Status))
	statusStr := lipgloss.NewStyle().Foreground(color).Bold(true).
		Render(theme.StatusGlyph(string(m.Status)) + " " + strings.ReplaceAll(string(m.Status), "_", " "))

	stage := m.Stage
	if stage == "" {
		stage = "-"
	}
	if i := m.Stages.Index(m.Stage); i >= 0 {
		stage = fmt.Sprintf("%s (%d/%d)", stage, i+1, len(m.Stages))
	}
	header := statusStr + theme.StyleDimmed.Render("  stage ") + theme.StyleHeader.Render(stage)

	pct := fmt.Sprintf(" %3d%%", m.Progress)
	barW := innerW - 4 - len(pct)
	bar := renderBar(m.pos, barW, color) + theme.StyleHeader.Render(pct)

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, bar))
}

func renderBar(pos float64, width int, color lipgloss.Color) string {
	if width < 1 {
		return ""
	}
	filled := int(math.Round(pos / 100 * float64(width)))
	filled = max(0, min(filled, width))
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", width-filled))
}
