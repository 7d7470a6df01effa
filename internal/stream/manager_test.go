package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/clock"
)

type fakeSocket struct {
	url      string
	h        Handlers
	open     bool
	detached bool
	closed   bool
	sent     []string
	onClose  func()
}

func (s *fakeSocket) Send(data []byte) error {
	if !s.open {
		return errors.New("not open")
	}
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSocket) IsOpen() bool { return s.open }
func (s *fakeSocket) Detach()      { s.detached = true }

func (s *fakeSocket) Close() error {
	if s.onClose != nil {
		s.onClose()
	}
	s.closed = true
	s.open = false
	return nil
}

// accept simulates the server completing the handshake.
func (s *fakeSocket) accept() {
	if s.detached {
		return
	}
	s.open = true
	s.h.OnOpen()
}

func (s *fakeSocket) receive(raw string) {
	if s.detached {
		return
	}
	s.h.OnMessage([]byte(raw))
}

// fail simulates a transport error, which is always followed by a close.
func (s *fakeSocket) fail() {
	if s.detached {
		return
	}
	s.open = false
	s.closed = true
	err := errors.New("connection refused")
	s.h.OnError(err)
	s.h.OnClose(err)
}

type fakeTransport struct {
	sockets []*fakeSocket
	// liveAtOpen records how many earlier sockets were still open when a
	// new one was requested.
	liveAtOpen []int
}

func (t *fakeTransport) Open(url string, h Handlers) Socket {
	live := 0
	for _, s := range t.sockets {
		if !s.closed {
			live++
		}
	}
	t.liveAtOpen = append(t.liveAtOpen, live)
	s := &fakeSocket{url: url, h: h}
	t.sockets = append(t.sockets, s)
	return s
}

func (t *fakeTransport) last() *fakeSocket {
	return t.sockets[len(t.sockets)-1]
}

func newTestManager() (*Manager, *fakeTransport, *clock.Fake) {
	tr := &fakeTransport{}
	clk := clock.NewFake(time.Unix(0, 0))
	m := NewManager(tr, Options{BaseURL: "ws://feed.test/", Clock: clk})
	return m, tr, clk
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{1, 2, 4, 8, 8, 8, 8}
	for attempt, w := range want {
		got := Backoff(DefaultReconnectBase, DefaultReconnectMax, attempt)
		if got != w*time.Second {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", attempt, got, w*time.Second)
		}
	}
	if got := Backoff(time.Second, 8*time.Second, 200); got != 8*time.Second {
		t.Errorf("Backoff(attempt=200) = %v, want 8s", got)
	}
}

func TestConnectTransitions(t *testing.T) {
	m, tr, _ := newTestManager()

	var states []State
	m.OnStateChange(func(s State) { states = append(states, s) })

	m.Connect("proj-a")
	if len(tr.sockets) != 1 {
		t.Fatalf("expected 1 socket, got %d", len(tr.sockets))
	}
	if got := tr.last().url; got != "ws://feed.test/ws/proj-a" {
		t.Errorf("url = %q, want %q", got, "ws://feed.test/ws/proj-a")
	}

	tr.last().accept()

	want := []State{StateConnecting, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
	if m.Target() != "proj-a" {
		t.Errorf("Target() = %q, want proj-a", m.Target())
	}
}

func TestConnectIdempotent(t *testing.T) {
	m, tr, _ := newTestManager()

	m.Connect("proj-a")
	m.Connect("proj-a")
	tr.last().accept()
	m.Connect("proj-a")

	if len(tr.sockets) != 1 {
		t.Errorf("expected 1 socket, got %d", len(tr.sockets))
	}
}

func TestSwitchTargetTearsDownFirst(t *testing.T) {
	m, tr, _ := newTestManager()

	var changes []TargetChange
	m.OnTargetChange(func(c TargetChange) { changes = append(changes, c) })

	m.Connect("proj-a")
	first := tr.last()
	first.accept()

	m.Connect("proj-b")
	if len(tr.sockets) != 2 {
		t.Fatalf("expected 2 sockets, got %d", len(tr.sockets))
	}
	if !first.detached || !first.closed {
		t.Errorf("previous socket detached=%v closed=%v, want both true", first.detached, first.closed)
	}
	for i, live := range tr.liveAtOpen {
		if live != 0 {
			t.Errorf("open #%d happened with %d live sockets", i, live)
		}
	}

	if len(changes) != 2 {
		t.Fatalf("changes = %v, want 2 entries", changes)
	}
	if changes[1] != (TargetChange{Previous: "proj-a", Current: "proj-b"}) {
		t.Errorf("changes[1] = %+v", changes[1])
	}
}

func TestSwitchTargetPassesThroughDisconnected(t *testing.T) {
	m, tr, _ := newTestManager()

	m.Connect("proj-a")
	tr.last().accept()

	var states []State
	m.OnStateChange(func(s State) { states = append(states, s) })

	m.Connect("proj-b")
	tr.last().accept()

	want := []State{StateDisconnected, StateConnecting, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestSocketClosedWithoutLock(t *testing.T) {
	tests := []struct {
		name string
		next func(m *Manager)
	}{
		{"disconnect", func(m *Manager) { m.Disconnect() }},
		{"switch target", func(m *Manager) { m.Connect("proj-b") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, tr, _ := newTestManager()
			m.Connect("proj-a")
			first := tr.last()
			first.accept()

			var seen State
			first.onClose = func() { seen = m.State() }

			done := make(chan struct{})
			go func() {
				tt.next(m)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("socket Close ran while the manager lock was held")
			}
			if !first.closed {
				t.Error("previous socket not closed")
			}
			if seen != StateDisconnected {
				t.Errorf("state during close = %s, want disconnected", seen)
			}
		})
	}
}

func TestReconnectDelaySequence(t *testing.T) {
	m, tr, clk := newTestManager()
	m.Connect("proj-a")

	want := []time.Duration{1, 2, 4, 8, 8, 8}
	for i, w := range want {
		tr.last().fail()

		if m.State() != StateDisconnected {
			t.Fatalf("round %d: state = %s, want disconnected", i, m.State())
		}
		d, ok := clk.Next()
		if !ok {
			t.Fatalf("round %d: no reconnect scheduled", i)
		}
		if d != w*time.Second {
			t.Errorf("round %d: delay = %v, want %v", i, d, w*time.Second)
		}

		before := len(tr.sockets)
		clk.Advance(d)
		if len(tr.sockets) != before+1 {
			t.Fatalf("round %d: reconnect did not open a socket", i)
		}
		if m.State() != StateConnecting {
			t.Errorf("round %d: state = %s, want connecting", i, m.State())
		}
	}
}

func TestAttemptResetsOnlyOnOpen(t *testing.T) {
	m, tr, clk := newTestManager()
	m.Connect("proj-a")

	for i := 0; i < 3; i++ {
		tr.last().fail()
		d, _ := clk.Next()
		clk.Advance(d)
	}
	if m.Attempt() != 3 {
		t.Fatalf("Attempt() = %d after 3 failures, want 3", m.Attempt())
	}

	tr.last().accept()
	if m.Attempt() != 0 {
		t.Errorf("Attempt() = %d after open, want 0", m.Attempt())
	}

	tr.last().fail()
	if d, _ := clk.Next(); d != time.Second {
		t.Errorf("delay after reset = %v, want 1s", d)
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	m, tr, clk := newTestManager()
	m.Connect("proj-a")
	tr.last().fail()

	if clk.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 reconnect timer", clk.Pending())
	}

	m.Disconnect()
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d after disconnect, want 0", clk.Pending())
	}

	clk.Advance(time.Minute)
	if len(tr.sockets) != 1 {
		t.Errorf("reconnect fired after disconnect: %d sockets", len(tr.sockets))
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if m.Target() != "" {
		t.Errorf("Target() = %q, want empty", m.Target())
	}
}

func TestErrorThenCloseSchedulesOnce(t *testing.T) {
	m, tr, clk := newTestManager()

	var states []State
	m.OnStateChange(func(s State) { states = append(states, s) })

	m.Connect("proj-a")
	s := tr.last()
	s.accept()

	s.h.OnError(errors.New("reset by peer"))
	if m.State() != StateError {
		t.Fatalf("state = %s, want error", m.State())
	}
	if d, ok := clk.Next(); ok && d != DefaultPingInterval {
		t.Errorf("error scheduled a timer of %v", d)
	}

	s.h.OnClose(errors.New("reset by peer"))
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if clk.Pending() != 1 {
		t.Errorf("Pending() = %d, want exactly one reconnect timer", clk.Pending())
	}

	want := []State{StateConnecting, StateConnected, StateError, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestMessageFiltering(t *testing.T) {
	m, tr, _ := newTestManager()

	var got []Message
	m.OnMessage(func(msg Message) { got = append(got, msg) })

	m.Connect("proj-a")
	s := tr.last()
	s.accept()

	s.receive(`{"type":"pong"}`)
	s.receive(`not json`)
	s.receive(`{"type":"event","event":"agent.started","project_id":"proj-a","timestamp":"2026-01-01T00:00:00Z","data":{"agent_name":"ryan"}}`)

	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Name() != "agent.started" {
		t.Errorf("Name() = %q, want agent.started", got[0].Name())
	}
	if got[0].Data["agent_name"] != "ryan" {
		t.Errorf("data = %v", got[0].Data)
	}
}

func TestKeepAlive(t *testing.T) {
	m, tr, clk := newTestManager()
	m.Connect("proj-a")
	s := tr.last()
	s.accept()

	clk.Advance(DefaultPingInterval)
	clk.Advance(DefaultPingInterval)

	if len(s.sent) != 2 {
		t.Fatalf("sent %d frames, want 2", len(s.sent))
	}
	if s.sent[0] != `{"action":"ping"}` {
		t.Errorf("ping frame = %s", s.sent[0])
	}

	m.Disconnect()
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d after disconnect, want 0", clk.Pending())
	}
}

func TestKeepAliveStopsOnClose(t *testing.T) {
	m, tr, clk := newTestManager()
	m.Connect("proj-a")
	s := tr.last()
	s.accept()
	s.fail()

	// Only the reconnect timer should remain.
	if clk.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", clk.Pending())
	}
	if d, _ := clk.Next(); d != time.Second {
		t.Errorf("next timer = %v, want reconnect at 1s", d)
	}
}

func TestSendWhileNotConnectedDrops(t *testing.T) {
	m, tr, _ := newTestManager()

	m.Send(ClientMessage{Action: ActionPing})

	m.Connect("proj-a")
	m.Subscribe("agents")
	if len(tr.last().sent) != 0 {
		t.Errorf("sent before open: %v", tr.last().sent)
	}

	tr.last().accept()
	m.Subscribe("agents")
	if got := tr.last().sent; len(got) != 1 || got[0] != `{"action":"subscribe","channel":"agents"}` {
		t.Errorf("sent = %v", got)
	}
}

func TestStaleSocketCallbacksIgnored(t *testing.T) {
	m, tr, clk := newTestManager()

	var got []string
	m.OnMessage(func(msg Message) { got = append(got, msg.ProjectID) })

	m.Connect("proj-a")
	old := tr.last()
	old.accept()

	m.Connect("proj-b")
	fresh := tr.last()

	// Bypass Detach to simulate a callback already in flight.
	old.h.OnMessage([]byte(`{"type":"event","event":"x","project_id":"proj-a"}`))
	old.h.OnClose(errors.New("late close"))

	if len(got) != 0 {
		t.Errorf("stale message delivered: %v", got)
	}
	if m.State() != StateConnecting {
		t.Errorf("state = %s, want connecting", m.State())
	}
	if clk.Pending() != 0 {
		t.Errorf("stale close scheduled a reconnect")
	}

	fresh.accept()
	fresh.receive(`{"type":"event","event":"x","project_id":"proj-b"}`)
	if len(got) != 1 || got[0] != "proj-b" {
		t.Errorf("got = %v, want [proj-b]", got)
	}
}

func TestTargetChangeDeliveredBeforeMessages(t *testing.T) {
	m, tr, _ := newTestManager()

	var order []string
	m.OnTargetChange(func(c TargetChange) { order = append(order, "target:"+c.Current) })
	m.OnMessage(func(msg Message) { order = append(order, "msg:"+msg.ProjectID) })

	m.Connect("proj-a")
	tr.last().accept()
	tr.last().receive(`{"type":"event","event":"x","project_id":"proj-a"}`)
	m.Connect("proj-b")
	tr.last().accept()
	tr.last().receive(`{"type":"event","event":"x","project_id":"proj-b"}`)

	want := []string{"target:proj-a", "msg:proj-a", "target:proj-b", "msg:proj-b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestListenerMayDisconnect(t *testing.T) {
	m, tr, clk := newTestManager()

	m.OnStateChange(func(s State) {
		if s == StateConnected {
			m.Disconnect()
		}
	})

	m.Connect("proj-a")
	tr.last().accept()

	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clk.Pending())
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	m, tr, _ := newTestManager()

	m.OnMessage(func(Message) { panic("boom") })
	delivered := 0
	m.OnMessage(func(Message) { delivered++ })

	m.Connect("proj-a")
	tr.last().accept()
	tr.last().receive(`{"type":"event","event":"x"}`)
	tr.last().receive(`{"type":"event","event":"y"}`)

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}

func TestCloseDropsListeners(t *testing.T) {
	m, _, _ := newTestManager()
	m.OnMessage(func(Message) {})
	m.OnStateChange(func(State) {})

	m.Close()
	if m.messages.Len() != 0 || m.states.Len() != 0 {
		t.Errorf("listeners remain after Close")
	}
}
