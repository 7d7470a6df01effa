package eventstore

import (
	"fmt"
	"testing"

	"github.com/aiden-platform/aiden-watch/internal/stream"
)

type fakeSource struct {
	messages *stream.Registry[stream.Message]
	targets  *stream.Registry[stream.TargetChange]
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		messages: stream.NewRegistry[stream.Message]("message", nil),
		targets:  stream.NewRegistry[stream.TargetChange]("target", nil),
	}
}

func (f *fakeSource) OnMessage(fn func(stream.Message)) stream.Subscription {
	return f.messages.Add(fn)
}

func (f *fakeSource) OnTargetChange(fn func(stream.TargetChange)) stream.Subscription {
	return f.targets.Add(fn)
}

func ev(i int) Event {
	return Event{EventType: fmt.Sprintf("e%d", i), ScopeID: "p"}
}

func TestAddNewestFirst(t *testing.T) {
	s := New(nil)
	if _, ok := s.Latest(); ok {
		t.Fatal("Latest on empty store reported ok")
	}

	s.Add(ev(1))
	s.Add(ev(2))
	s.Add(ev(3))

	latest, ok := s.Latest()
	if !ok || latest.EventType != "e3" {
		t.Errorf("Latest() = %v, %v; want e3", latest.EventType, ok)
	}
	h := s.History()
	want := []string{"e3", "e2", "e1"}
	for i, w := range want {
		if h[i].EventType != w {
			t.Errorf("History()[%d] = %s, want %s", i, h[i].EventType, w)
		}
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := New(nil)
	for i := 1; i <= Capacity+1; i++ {
		s.Add(ev(i))
	}

	if s.Len() != Capacity {
		t.Fatalf("Len() = %d, want %d", s.Len(), Capacity)
	}
	h := s.History()
	if h[0].EventType != fmt.Sprintf("e%d", Capacity+1) {
		t.Errorf("newest = %s", h[0].EventType)
	}
	if last := h[len(h)-1].EventType; last != "e2" {
		t.Errorf("oldest = %s, want e2 (e1 evicted)", last)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := New(nil)
	s.Add(ev(1))
	h := s.History()
	h[0].EventType = "mutated"

	if latest, _ := s.Latest(); latest.EventType != "e1" {
		t.Errorf("store mutated through History(): %s", latest.EventType)
	}
}

func TestAttachNormalizesMessages(t *testing.T) {
	src := newFakeSource()
	s := New(nil)
	s.Attach(src)

	var got []Event
	s.OnEvent(func(e Event) { got = append(got, e) })

	src.messages.Dispatch(stream.Message{
		Type:      "event",
		Event:     "stage.entered",
		ProjectID: "proj-1",
		Timestamp: "2026-01-01T00:00:00Z",
		Data:      map[string]any{"stage": "load_document"},
	})
	src.messages.Dispatch(stream.Message{Type: "event", EventType: "agent.started", ProjectID: "proj-1"})

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].EventType != "stage.entered" || got[0].ScopeID != "proj-1" || got[0].Str("stage") != "load_document" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].EventType != "agent.started" {
		t.Errorf("second event type = %s, want agent.started", got[1].EventType)
	}
}

func TestTargetChangeResets(t *testing.T) {
	src := newFakeSource()
	s := New(nil)
	s.Attach(src)

	resets := 0
	s.OnReset(func() { resets++ })

	src.messages.Dispatch(stream.Message{Event: "a"})
	src.targets.Dispatch(stream.TargetChange{Previous: "p1", Current: "p2"})

	if s.Len() != 0 {
		t.Errorf("Len() = %d after target change, want 0", s.Len())
	}
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}

	src.targets.Dispatch(stream.TargetChange{Previous: "p2"})
	if resets != 2 {
		t.Errorf("disconnect did not reset, resets = %d", resets)
	}
}

func TestDetachStopsListening(t *testing.T) {
	src := newFakeSource()
	s := New(nil)
	s.Attach(src)
	s.Detach()

	src.messages.Dispatch(stream.Message{Event: "a"})
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Detach, want 0", s.Len())
	}
}

func TestEventBusPayloadLookup(t *testing.T) {
	e := FromMessage(stream.Message{
		EventType: "agent.node.enter",
		ProjectID: "p",
		Data: map[string]any{
			"execution_id": "ex-1",
			"timestamp":    "2026-01-01T00:00:00+00:00",
			"data":         map[string]any{"node_name": "load_document"},
		},
	})

	if e.Timestamp != "2026-01-01T00:00:00+00:00" {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}
	if got := e.Str("node_name"); got != "load_document" {
		t.Errorf("Str(node_name) = %q", got)
	}
	if got := e.Str("execution_id"); got != "ex-1" {
		t.Errorf("Str(execution_id) = %q", got)
	}
	if _, ok := e.Value("missing"); ok {
		t.Error("Value(missing) reported ok")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"agent.started", RunStarted},
		{"agent.node.enter", StageEntered},
		{"agent.completed", RunCompleted},
		{"agent.error", RunError},
		{"agent.hitl.requested", ReviewRequested},
		{"agent.hitl.resolved", ReviewResolved},
		{RunStarted, RunStarted},
		{"agent.node.exit", "agent.node.exit"},
		{"foo.bar", "foo.bar"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
