package app

import (
	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/review"
	"github.com/aiden-platform/aiden-watch/internal/session"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	tea "github.com/charmbracelet/bubbletea"
)

// sessionMsg tells the model to re-read session state.
type sessionMsg struct{}

// bridge turns session notifications into Bubble Tea messages. Bursts
// collapse into one pending signal since the model reads fresh snapshots.
type bridge struct {
	ch   chan struct{}
	subs []stream.Subscription
}

func newBridge(s *session.Session) *bridge {
	b := &bridge{ch: make(chan struct{}, 1)}
	b.subs = []stream.Subscription{
		s.Manager.OnStateChange(func(stream.State) { b.poke() }),
		s.Manager.OnTargetChange(func(stream.TargetChange) { b.poke() }),
		s.Progress.OnChange(func(progress.Snapshot) { b.poke() }),
		s.Reviews.OnChange(func(review.Snapshot) { b.poke() }),
	}
	return b
}

func (b *bridge) poke() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// wait blocks until the next notification.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.ch
		return sessionMsg{}
	}
}

func (b *bridge) close() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
}
