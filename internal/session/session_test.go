package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/clock"
	"github.com/aiden-platform/aiden-watch/internal/eventstore"
	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/google/uuid"
)

type fakeSocket struct {
	h        stream.Handlers
	open     bool
	detached bool
	closed   bool
}

func (s *fakeSocket) Send([]byte) error {
	if !s.open {
		return errors.New("not open")
	}
	return nil
}
func (s *fakeSocket) IsOpen() bool { return s.open }
func (s *fakeSocket) Detach()      { s.detached = true }
func (s *fakeSocket) Close() error {
	s.closed, s.open = true, false
	return nil
}

func (s *fakeSocket) accept() {
	s.open = true
	s.h.OnOpen()
}

func (s *fakeSocket) receive(raw string) {
	if !s.detached {
		s.h.OnMessage([]byte(raw))
	}
}

type fakeTransport struct {
	urls    []string
	sockets []*fakeSocket
}

func (t *fakeTransport) Open(url string, h stream.Handlers) stream.Socket {
	s := &fakeSocket{h: h}
	t.urls = append(t.urls, url)
	t.sockets = append(t.sockets, s)
	return s
}

func (t *fakeTransport) last() *fakeSocket { return t.sockets[len(t.sockets)-1] }

type fakeReviews struct {
	mu    sync.Mutex
	lists int
	items []client.Review
}

func (f *fakeReviews) ListPendingReviews(context.Context) ([]client.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return append([]client.Review(nil), f.items...), nil
}

func (f *fakeReviews) GetReview(_ context.Context, id string) (*client.Review, error) {
	return &client.Review{ID: id}, nil
}

func (f *fakeReviews) ApproveReview(_ context.Context, id, _ string) (*client.Decision, error) {
	return &client.Decision{ReviewID: id, Decision: client.DecisionApproved}, nil
}

func (f *fakeReviews) RejectReview(_ context.Context, id, _ string) (*client.Decision, error) {
	return &client.Decision{ReviewID: id, Decision: client.DecisionRejected}, nil
}

func (f *fakeReviews) RequestRevision(_ context.Context, id, _ string, _ map[string]any) (*client.Decision, error) {
	return &client.Decision{ReviewID: id, Decision: client.DecisionRevision}, nil
}

func (f *fakeReviews) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func newTestSession(stages StageResolver) (*Session, *fakeTransport, *fakeReviews) {
	tr := &fakeTransport{}
	svc := &fakeReviews{items: []client.Review{{ID: uuid.NewString(), Status: client.ReviewPending}}}
	s := New(Options{
		Transport: tr,
		Reviews:   svc,
		Stream:    stream.Options{BaseURL: "ws://feed.test", Clock: clock.NewFake(time.Unix(0, 0))},
		Stages:    stages,
	})
	return s, tr, svc
}

func TestRunThroughSession(t *testing.T) {
	s, tr, svc := newTestSession(nil)
	defer s.Close()

	s.Connect("proj-a")
	if tr.urls[0] != "ws://feed.test/ws/proj-a" {
		t.Errorf("url = %s", tr.urls[0])
	}
	tr.last().accept()
	sock := tr.last()
	sock.receive(`{"event_type":"agent.started","project_id":"proj-a","data":{}}`)
	sock.receive(`{"event_type":"agent.node.enter","project_id":"proj-a","data":{"data":{"node_name":"load_document"}}}`)
	sock.receive(`{"type":"pong"}`)
	sock.receive(`{"event_type":"agent.hitl.requested","project_id":"proj-a","data":{"review_type":"final_review"}}`)
	s.Reviews.Wait()

	if s.Events.Len() != 3 {
		t.Errorf("Events.Len() = %d, want 3", s.Events.Len())
	}
	snap := s.Progress.Snapshot()
	if snap.Status != progress.StatusWaitingForReview || snap.Progress != 10 || snap.Stage != "load_document" {
		t.Errorf("progress = %+v", snap)
	}
	// One fetch on activation, one on the review request.
	if n := svc.listCount(); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
	if len(s.Reviews.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(s.Reviews.Pending()))
	}
}

func TestTargetSwitchClearsStateFirst(t *testing.T) {
	custom := progress.Table{{Name: "ingest", Threshold: 50}}
	s, tr, _ := newTestSession(func(target string) progress.Table {
		if target == "proj-b" {
			return custom
		}
		return progress.DefaultStages()
	})
	defer s.Close()

	s.Connect("proj-a")
	a := tr.last()
	a.accept()
	a.receive(`{"event":"run.started","project_id":"proj-a"}`)
	a.receive(`{"event":"stage.entered","project_id":"proj-a","data":{"stage":"build_traceability"}}`)
	s.Reviews.Wait()
	if s.Progress.Progress() != 80 {
		t.Fatalf("progress = %d, want 80", s.Progress.Progress())
	}

	var seen []int
	s.Events.OnEvent(func(eventstore.Event) {
		seen = append(seen, s.Progress.Progress())
	})

	s.Connect("proj-b")
	if !a.detached || !a.closed {
		t.Error("old socket not detached and closed")
	}
	if s.Events.Len() != 0 {
		t.Errorf("Events.Len() = %d after switch", s.Events.Len())
	}
	if snap := s.Progress.Snapshot(); snap.Status != progress.StatusIdle || snap.Progress != 0 || len(snap.Log) != 0 {
		t.Errorf("progress after switch = %+v", snap)
	}

	a.receive(`{"event":"stage.entered","project_id":"proj-a","data":{"stage":"finalize_deliverables"}}`)
	if s.Events.Len() != 0 {
		t.Error("stale socket message reached the store")
	}

	b := tr.last()
	b.accept()
	b.receive(`{"event":"run.started","project_id":"proj-b"}`)
	b.receive(`{"event":"stage.entered","project_id":"proj-b","data":{"stage":"ingest"}}`)
	s.Reviews.Wait()

	if s.Progress.Progress() != 50 {
		t.Errorf("progress = %d, want 50 from the proj-b table", s.Progress.Progress())
	}
	if len(seen) == 0 || seen[0] != 0 {
		t.Errorf("first proj-b event observed progress %v, want reset state", seen)
	}
}

func TestDisconnectClearsDerivedState(t *testing.T) {
	s, tr, _ := newTestSession(nil)
	defer s.Close()

	s.Connect("proj-a")
	tr.last().accept()
	tr.last().receive(`{"event":"run.started","project_id":"proj-a"}`)
	s.Reviews.Wait()

	s.Disconnect()
	if s.Target() != "" {
		t.Errorf("Target() = %q", s.Target())
	}
	if s.Events.Len() != 0 || s.Progress.Status() != progress.StatusIdle || len(s.Reviews.Pending()) != 0 {
		t.Error("derived state survived disconnect")
	}
	if s.Manager.State() != stream.StateDisconnected {
		t.Errorf("state = %s", s.Manager.State())
	}
}
