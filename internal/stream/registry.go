package stream

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Subscription removes the listener it was returned for. The zero value is
// a no-op.
type Subscription struct {
	once   *sync.Once
	cancel func()
}

// Unsubscribe removes the listener. Safe to call more than once and from
// inside the listener itself.
func (s Subscription) Unsubscribe() {
	if s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

type listener[T any] struct {
	id      uint64
	fn      func(T)
	removed atomic.Bool
}

// Registry is an ordered set of listeners. Dispatch iterates a snapshot,
// so listeners may add or remove listeners while being called.
type Registry[T any] struct {
	name   string
	logger *zap.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners []*listener[T]
}

// NewRegistry creates an empty registry. name labels panic logs.
func NewRegistry[T any](name string, logger *zap.Logger) *Registry[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry[T]{name: name, logger: logger}
}

// Add registers fn and returns its subscription.
func (r *Registry[T]) Add(fn func(T)) Subscription {
	r.mu.Lock()
	r.nextID++
	l := &listener[T]{id: r.nextID, fn: fn}
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()

	return Subscription{
		once:   &sync.Once{},
		cancel: func() { r.remove(l) },
	}
}

func (r *Registry[T]) remove(l *listener[T]) {
	l.removed.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.listeners {
		if cur == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Clear drops every listener.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		l.removed.Store(true)
	}
	r.listeners = nil
}

// Dispatch calls every listener registered at the time of the call, in
// registration order. A listener removed during dispatch is skipped if it
// has not run yet. Panics are recovered and logged per listener.
func (r *Registry[T]) Dispatch(v T) {
	r.mu.Lock()
	snapshot := make([]*listener[T], len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.Unlock()

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}
		r.safeCall(l, v)
	}
}

func (r *Registry[T]) safeCall(l *listener[T], v T) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("listener panicked",
				zap.String("registry", r.name),
				zap.Uint64("listener", l.id),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	l.fn(v)
}
