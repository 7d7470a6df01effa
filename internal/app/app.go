package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/session"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/aiden-platform/aiden-watch/internal/theme"
	"github.com/aiden-platform/aiden-watch/internal/views/eventlog"
	"github.com/aiden-platform/aiden-watch/internal/views/progressbar"
	"github.com/aiden-platform/aiden-watch/internal/views/reviews"
	"github.com/aiden-platform/aiden-watch/internal/views/status"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const requestTimeout = 15 * time.Second

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
)

// inputMode is what the text prompt is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputApprove
	inputReject
	inputRevise
	inputProject
)

func (m inputMode) prompt() string {
	switch m {
	case inputApprove:
		return "Approve (optional feedback): "
	case inputReject:
		return "Reject (feedback required): "
	case inputRevise:
		return "Request revision (feedback required): "
	case inputProject:
		return "Project: "
	default:
		return ""
	}
}

func (m inputMode) verb() string {
	switch m {
	case inputApprove:
		return "approved"
	case inputReject:
		return "rejected"
	case inputRevise:
		return "sent back for revision"
	default:
		return ""
	}
}

// decisionMsg reports the outcome of an approve, reject or revise call.
type decisionMsg struct {
	mode inputMode
	id   string
	err  error
}

// openedMsg carries a fetched review for the detail pane.
type openedMsg struct {
	review *client.Review
	err    error
}

// refreshedMsg reports a manual reload of the pending list.
type refreshedMsg struct {
	err error
}

// Options configures the root model.
type Options struct {
	// Project is connected on start when set.
	Project string
}

// Model is the root Bubble Tea model.
type Model struct {
	sess   *session.Session
	bridge *bridge
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	project string

	overlay Overlay
	mode    inputMode
	modeFor string // review id the prompt applies to
	input   textinput.Model

	notice    string
	noticeErr bool
	animating bool

	// Sub-views.
	statusBar status.Model
	progress  progressbar.Model
	events    eventlog.Model
	list      reviews.List
	detail    reviews.Detail
}

// New creates the root model over a session.
func New(sess *session.Session, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := textinput.New()
	in.CharLimit = 2000

	return Model{
		sess:      sess,
		bridge:    newBridge(sess),
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		project:   strings.TrimSpace(opts.Project),
		input:     in,
		statusBar: status.New(),
		progress:  progressbar.New(),
		events:    eventlog.New(),
		list:      reviews.NewList(),
		detail:    reviews.NewDetail(),
	}
}

// Init connects to the initial project and starts listening for session
// changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bridge.wait(), m.list.Tick()}
	if m.project != "" {
		cmds = append(cmds, m.connect(m.project))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-50, 20)
		if m.detail.Review != nil {
			m.detail.Resize(m.width, m.bodyHeight())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionMsg:
		cmd := m.sync()
		return m, tea.Batch(m.bridge.wait(), cmd)

	case progressbar.FrameMsg:
		if m.progress.Animate() {
			return m, progressbar.Frame()
		}
		m.animating = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case openedMsg:
		if msg.err != nil {
			m.setNotice(msg.err.Error(), true)
			return m, nil
		}
		// A decision or reset may have landed while the fetch was in flight.
		if sel := m.sess.Reviews.Selected(); sel == nil || sel.ID != msg.review.ID {
			return m, nil
		}
		m.overlay = OverlayDetail
		m.detail.Open(msg.review, m.width, m.bodyHeight())
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.setNotice(msg.err.Error(), true)
			return m, nil
		}
		m.setNotice("Reviews refreshed", false)
		return m, nil

	case decisionMsg:
		if msg.err != nil {
			m.setNotice(msg.err.Error(), true)
			return m, nil
		}
		m.setNotice(fmt.Sprintf("Review %s %s", shortID(msg.id), msg.mode.verb()), false)
		return m, nil
	}

	return m, nil
}

// sync re-reads session state into the sub-views.
func (m *Model) sync() tea.Cmd {
	mgr := m.sess.Manager
	m.statusBar.State = mgr.State()
	m.statusBar.Target = mgr.Target()
	m.statusBar.Attempt = mgr.Attempt()

	snap := m.sess.Progress.Snapshot()
	m.progress.Stages = m.sess.Progress.Stages()
	moving := m.progress.Set(snap)
	m.events.Set(snap.Log)

	rs := m.sess.Reviews.Snapshot()
	m.list.Set(rs)
	m.statusBar.Pending = len(rs.Pending)

	// The queue drops its selection once the item is decided or reset.
	if m.detail.Review != nil && (rs.Selected == nil || rs.Selected.ID != m.detail.Review.ID) {
		m.detail.Close()
		if m.overlay == OverlayDetail {
			m.overlay = OverlayNone
		}
	}

	if moving && !m.animating {
		m.animating = true
		return progressbar.Frame()
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode != inputNone {
		return m.handleInput(msg)
	}

	if key.Matches(msg, m.keys.Quit) {
		return m, m.quit()
	}

	if m.overlay == OverlayDetail {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
			m.detail.Close()
			m.sess.Reviews.CloseOpen()
			return m, nil
		case key.Matches(msg, m.keys.Approve):
			return m.startInput(inputApprove, m.detail.Review.ID)
		case key.Matches(msg, m.keys.Reject):
			return m.startInput(inputReject, m.detail.Review.ID)
		case key.Matches(msg, m.keys.Revise):
			return m.startInput(inputRevise, m.detail.Review.ID)
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.list.Next()
	case key.Matches(msg, m.keys.Up):
		m.list.Prev()
	case key.Matches(msg, m.keys.LogUp):
		m.events.ScrollUp(5)
	case key.Matches(msg, m.keys.LogDown):
		m.events.ScrollDown(5)
	case key.Matches(msg, m.keys.Refresh):
		m.setNotice("Refreshing reviews", false)
		return m, m.refresh()
	case key.Matches(msg, m.keys.Project):
		return m.startInput(inputProject, "")
	case key.Matches(msg, m.keys.Enter):
		if r := m.list.Current(); r != nil {
			return m, m.open(r.ID)
		}
	case key.Matches(msg, m.keys.Approve):
		if r := m.list.Current(); r != nil {
			return m.startInput(inputApprove, r.ID)
		}
	case key.Matches(msg, m.keys.Reject):
		if r := m.list.Current(); r != nil {
			return m.startInput(inputReject, r.ID)
		}
	case key.Matches(msg, m.keys.Revise):
		if r := m.list.Current(); r != nil {
			return m.startInput(inputRevise, r.ID)
		}
	}
	return m, nil
}

func (m Model) startInput(mode inputMode, id string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.modeFor = id
	m.input.Reset()
	m.input.Prompt = mode.prompt()
	if mode == inputProject {
		m.input.SetValue(m.sess.Target())
		m.input.CursorEnd()
	}
	return m, m.input.Focus()
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, m.quit()
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		mode, id, value := m.mode, m.modeFor, m.input.Value()
		m.mode = inputNone
		m.input.Blur()
		if mode == inputProject {
			value = strings.TrimSpace(value)
			if value == "" {
				m.setNotice("Project id is required", true)
				return m, nil
			}
			m.setNotice("Connecting to "+value, false)
			return m, m.connect(value)
		}
		return m, m.decide(mode, id, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setNotice(s string, isErr bool) {
	m.notice = s
	m.noticeErr = isErr
}

func (m Model) quit() tea.Cmd {
	m.cancel()
	m.bridge.close()
	return tea.Quit
}

func (m Model) connect(project string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		sess.Connect(project)
		return nil
	}
}

func (m Model) open(id string) tea.Cmd {
	ctx, q := m.ctx, m.sess.Reviews
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		r, err := q.Open(ctx, id)
		return openedMsg{review: r, err: err}
	}
}

func (m Model) refresh() tea.Cmd {
	ctx, q := m.ctx, m.sess.Reviews
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return refreshedMsg{err: q.Activate(ctx)}
	}
}

func (m Model) decide(mode inputMode, id, feedback string) tea.Cmd {
	ctx, q := m.ctx, m.sess.Reviews
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		var err error
		switch mode {
		case inputApprove:
			_, err = q.Approve(ctx, id, feedback)
		case inputReject:
			_, err = q.Reject(ctx, id, feedback)
		case inputRevise:
			_, err = q.RequestRevision(ctx, id, feedback, nil)
		}
		return decisionMsg{mode: mode, id: id, err: err}
	}
}

func (m Model) bodyHeight() int {
	// status bar 3, progress panel 4, prompt, notice and help lines.
	return max(m.height-10, 6)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.statusBar.View(),
		m.progress.View(m.width),
	}

	if banner := m.connectionBanner(); banner != "" {
		sections = append(sections, banner)
	}

	if m.overlay == OverlayDetail && m.detail.Review != nil {
		sections = append(sections, m.detail.View())
	} else {
		listW := max(m.width*2/5, 30)
		body := lipgloss.JoinHorizontal(lipgloss.Top,
			m.list.View(listW, m.bodyHeight()),
			m.events.View(m.width-listW, m.bodyHeight()),
		)
		sections = append(sections, body)
	}

	if m.mode != inputNone {
		sections = append(sections, m.input.View())
	}
	if m.notice != "" {
		style := theme.StyleDimmed
		if m.noticeErr {
			style = theme.StyleError
		}
		sections = append(sections, style.Render(m.notice))
	}
	sections = append(sections, theme.StyleDimmed.Render(
		"  j/k:select  enter:open  a:approve  x:reject  v:revise  r:refresh  p:project  pgup/pgdn:log  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) connectionBanner() string {
	state, target := m.statusBar.State, m.statusBar.Target
	if target == "" {
		return theme.StyleDimmed.Render("  No project selected. Press p to choose one.")
	}
	if state == stream.StateConnected {
		return ""
	}

	title := "CONNECTING"
	if m.statusBar.Attempt > 0 || state == stream.StateError {
		title = "DISCONNECTED"
	}
	line := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("  " + title)
	if m.statusBar.Attempt > 0 {
		line += theme.StyleDimmed.Render(fmt.Sprintf("  Reconnecting (attempt %d)...", m.statusBar.Attempt))
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
