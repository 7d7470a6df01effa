// Package progress derives run status, current stage, cumulative progress
// and a capped log from the event history of one agent run.
package progress

import (
	"sync"

	"github.com/aiden-platform/aiden-watch/internal/eventstore"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"go.uber.org/zap"
)

// LogCapacity bounds the log buffer.
const LogCapacity = 200

// Status is the run status.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusRunning          Status = "running"
	StatusWaitingForReview Status = "waiting_for_review"
	StatusCompleted        Status = "completed"
	StatusError            Status = "error"
)

// LogEntry is one line of the run log.
type LogEntry struct {
	Timestamp string
	EventType string
	Stage     string
	Message   string
}

// Snapshot is a copy of the aggregator state.
type Snapshot struct {
	Status   Status
	Stage    string
	Progress int
	Log      []LogEntry // newest first
}

// Source is the part of eventstore.Store the aggregator listens to.
type Source interface {
	OnEvent(fn func(eventstore.Event)) stream.Subscription
	OnReset(fn func()) stream.Subscription
}

// Aggregator projects events onto run state. Progress never decreases
// except on run start (reset to 0) and run completion (forced to 100).
type Aggregator struct {
	logger   *zap.Logger
	onChange *stream.Registry[Snapshot]

	mu       sync.Mutex
	table    Table
	status   Status
	stage    string
	progress int
	log      []LogEntry
	subs     []stream.Subscription
}

// New creates an idle Aggregator. A nil table uses DefaultStages.
func New(table Table, logger *zap.Logger) *Aggregator {
	if table == nil {
		table = DefaultStages()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "progress"))
	return &Aggregator{
		logger:   logger,
		onChange: stream.NewRegistry[Snapshot]("progress", logger),
		table:    table,
		status:   StatusIdle,
	}
}

// Attach consumes events and resets from src.
func (a *Aggregator) Attach(src Source) {
	evSub := src.OnEvent(a.Handle)
	resetSub := src.OnReset(a.Reset)

	a.mu.Lock()
	a.subs = append(a.subs, evSub, resetSub)
	a.mu.Unlock()
}

// Detach stops listening to every attached source.
func (a *Aggregator) Detach() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// SetStages replaces the stage table. Current progress is kept.
func (a *Aggregator) SetStages(t Table) {
	a.mu.Lock()
	a.table = t
	a.mu.Unlock()
}

// Stages returns the stage table in use.
func (a *Aggregator) Stages() Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table
}

// Handle applies e and appends it to the log.
func (a *Aggregator) Handle(e eventstore.Event) {
	a.mu.Lock()
	switch e.Kind() {
	case eventstore.RunStarted:
		a.status = StatusRunning
		a.progress = 0
		a.stage = ""
	case eventstore.StageEntered:
		name := stageName(e)
		if name == "" {
			a.logger.Debug("stage event without a name", zap.String("event_type", e.EventType))
			break
		}
		a.stage = name
		if th, ok := a.table.Threshold(name); ok {
			a.progress = max(a.progress, th)
		}
	case eventstore.RunCompleted:
		a.status = StatusCompleted
		a.progress = 100
	case eventstore.RunError:
		a.status = StatusError
	case eventstore.ReviewRequested:
		a.status = StatusWaitingForReview
	case eventstore.ReviewResolved:
		a.status = StatusRunning
	}
	a.appendLocked(e)
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.onChange.Dispatch(snap)
}

func (a *Aggregator) appendLocked(e eventstore.Event) {
	entry := LogEntry{
		Timestamp: e.Timestamp,
		EventType: e.EventType,
		Stage:     stageName(e),
		Message:   message(e),
	}
	if entry.Stage == "" {
		entry.Stage = a.stage
	}
	if len(a.log) < LogCapacity {
		a.log = append(a.log, LogEntry{})
	}
	copy(a.log[1:], a.log[:len(a.log)-1])
	a.log[0] = entry
}

// Reset returns to idle with no stage, zero progress and an empty log.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.status = StatusIdle
	a.stage = ""
	a.progress = 0
	a.log = nil
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.onChange.Dispatch(snap)
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	log := make([]LogEntry, len(a.log))
	copy(log, a.log)
	return Snapshot{Status: a.status, Stage: a.stage, Progress: a.progress, Log: log}
}

func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Aggregator) Stage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stage
}

func (a *Aggregator) Progress() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

// OnChange registers fn for every state change.
func (a *Aggregator) OnChange(fn func(Snapshot)) stream.Subscription {
	return a.onChange.Add(fn)
}

func stageName(e eventstore.Event) string {
	for _, key := range []string{"stage", "stage_name", "node_name"} {
		if s := e.Str(key); s != "" {
			return s
		}
	}
	return ""
}

func message(e eventstore.Event) string {
	if s := e.Str("message"); s != "" {
		return s
	}
	if s := e.Str("error"); s != "" {
		return s
	}
	return e.EventType
}
