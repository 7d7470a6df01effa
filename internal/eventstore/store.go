// Package eventstore keeps a bounded, newest-first history of the events
// received for the live target.
package eventstore

import (
	"sync"

	"github.com/aiden-platform/aiden-watch/internal/stream"
	"go.uber.org/zap"
)

// Capacity is the default history size.
const Capacity = 100

// Event is a normalized feed message. Treat it as immutable.
type Event struct {
	EventType string
	ScopeID   string
	Data      map[string]any
	Timestamp string
}

// FromMessage normalizes a wire message. Event-bus messages carry the
// timestamp inside data.
func FromMessage(msg stream.Message) Event {
	e := Event{
		EventType: msg.Name(),
		ScopeID:   msg.ProjectID,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
	}
	if e.Timestamp == "" {
		e.Timestamp = e.Str("timestamp")
	}
	return e
}

// Str returns the string at key, looking in Data and then in the nested
// payload the agent emitter wraps under data.data.
func (e Event) Str(key string) string {
	if s, ok := e.Data[key].(string); ok && s != "" {
		return s
	}
	if inner, ok := e.Data["data"].(map[string]any); ok {
		if s, ok := inner[key].(string); ok {
			return s
		}
	}
	return ""
}

// Value returns the raw value at key with the same lookup as Str.
func (e Event) Value(key string) (any, bool) {
	if v, ok := e.Data[key]; ok {
		return v, true
	}
	if inner, ok := e.Data["data"].(map[string]any); ok {
		v, ok := inner[key]
		return v, ok
	}
	return nil, false
}

// Source is the part of stream.Manager the store listens to.
type Source interface {
	OnMessage(fn func(stream.Message)) stream.Subscription
	OnTargetChange(fn func(stream.TargetChange)) stream.Subscription
}

// Store is a capped event history. Newest entries come first and the
// oldest are evicted once capacity is reached.
type Store struct {
	capacity int
	logger   *zap.Logger

	onEvent *stream.Registry[Event]
	onReset *stream.Registry[struct{}]

	mu     sync.Mutex
	events []Event
	subs   []stream.Subscription
}

// New creates a Store with the default capacity.
func New(logger *zap.Logger) *Store {
	return NewWithCapacity(Capacity, logger)
}

// NewWithCapacity creates a Store holding at most n events.
func NewWithCapacity(n int, logger *zap.Logger) *Store {
	if n <= 0 {
		n = Capacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "eventstore"))
	return &Store{
		capacity: n,
		logger:   logger,
		onEvent:  stream.NewRegistry[Event]("event", logger),
		onReset:  stream.NewRegistry[struct{}]("reset", logger),
		events:   make([]Event, 0, n),
	}
}

// Attach feeds the store from src. Any target change, including a
// disconnect, clears the history.
func (s *Store) Attach(src Source) {
	msgSub := src.OnMessage(func(msg stream.Message) { s.Add(FromMessage(msg)) })
	targetSub := src.OnTargetChange(func(tc stream.TargetChange) {
		s.logger.Debug("target changed, clearing history",
			zap.String("previous", tc.Previous),
			zap.String("current", tc.Current))
		s.Reset()
	})

	s.mu.Lock()
	s.subs = append(s.subs, msgSub, targetSub)
	s.mu.Unlock()
}

// Detach stops listening to every attached source.
func (s *Store) Detach() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Add prepends e, evicting the oldest entry when full, then notifies
// OnEvent listeners.
func (s *Store) Add(e Event) {
	s.mu.Lock()
	if len(s.events) < s.capacity {
		s.events = append(s.events, Event{})
	}
	copy(s.events[1:], s.events[:len(s.events)-1])
	s.events[0] = e
	s.mu.Unlock()

	s.onEvent.Dispatch(e)
}

// Latest returns the most recently added event.
func (s *Store) Latest() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[0], true
}

// History returns a copy of the buffer, newest first.
func (s *Store) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Reset empties the buffer and notifies OnReset listeners.
func (s *Store) Reset() {
	s.mu.Lock()
	clear(s.events)
	s.events = s.events[:0]
	s.mu.Unlock()

	s.onReset.Dispatch(struct{}{})
}

// OnEvent registers fn for every added event.
func (s *Store) OnEvent(fn func(Event)) stream.Subscription {
	return s.onEvent.Add(fn)
}

// OnReset registers fn for every reset.
func (s *Store) OnReset(fn func()) stream.Subscription {
	return s.onReset.Add(func(struct{}) { fn() })
}
