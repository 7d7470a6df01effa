package eventlog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aiden-platform/aiden-watch/internal/progress"
)

// newestFirst builds an aggregator-style log of n entries.
func newestFirst(n int) []progress.LogEntry {
	log := make([]progress.LogEntry, n)
	for i := range log {
		log[i] = progress.LogEntry{
			Timestamp: "2026-01-02T10:00:00Z",
			EventType: "stage.entered",
			Stage:     fmt.Sprintf("stage_%d", n-1-i),
			Message:   "stage.entered",
		}
	}
	return log
}

func TestSetReversesOrder(t *testing.T) {
	m := New()
	m.Set(newestFirst(3))
	if len(m.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(m.Entries))
	}
	if m.Entries[0].Stage != "stage_0" || m.Entries[2].Stage != "stage_2" {
		t.Errorf("entries not oldest first: %+v", m.Entries)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	m.Set(newestFirst(maxEntries + 50))
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScrollUpDown(t *testing.T) {
	m := New()
	m.Set(newestFirst(20))
	if m.Offset != 0 {
		t.Fatal("expected offset 0 after set")
	}

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
}

func TestScrollUpCapped(t *testing.T) {
	m := New()
	m.Set(newestFirst(5))
	m.ScrollUp(100)
	if m.Offset != 4 {
		t.Errorf("expected offset 4, got %d", m.Offset)
	}
}

func TestSetKeepsScrollWithoutNewLines(t *testing.T) {
	m := New()
	log := newestFirst(10)
	m.Set(log)
	m.ScrollUp(4)

	m.Set(log)
	if m.Offset != 4 {
		t.Errorf("expected offset 4 to survive an unchanged log, got %d", m.Offset)
	}

	m.Set(newestFirst(11))
	if m.Offset != 0 {
		t.Errorf("new line should reset scroll, got %d", m.Offset)
	}
}

func TestSetEmptyResets(t *testing.T) {
	m := New()
	m.Set(newestFirst(10))
	m.ScrollUp(3)
	m.Set(nil)
	if len(m.Entries) != 0 || m.Offset != 0 {
		t.Errorf("entries=%d offset=%d after reset", len(m.Entries), m.Offset)
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	v := m.View(80, 20)
	if !strings.Contains(v, "No events") {
		t.Error("empty view should show 'No events' message")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New()
	m.Set([]progress.LogEntry{
		{Timestamp: "2026-01-02T10:00:05Z", EventType: "agent.error", Stage: "extract_requirements", Message: "timeout"},
		{Timestamp: "2026-01-02T10:00:00Z", EventType: "agent.started", Message: "agent.started"},
	})
	v := m.View(100, 20)
	for _, want := range []string{"agent.started", "extract_requirements: timeout"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}
