// Package session owns the one live feed connection and the state derived
// from it. Callers hold a *Session instead of a process-wide manager.
package session

import (
	"sync"

	"github.com/aiden-platform/aiden-watch/internal/eventstore"
	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/review"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"go.uber.org/zap"
)

// StageResolver picks the stage table for a target.
type StageResolver func(target string) progress.Table

// Options configures a Session.
type Options struct {
	Transport stream.Transport
	Reviews   review.Service
	Stream    stream.Options
	// Stages defaults to the built-in pipeline for every target.
	Stages StageResolver
	Logger *zap.Logger
}

// Session wires Manager -> Store -> {Progress, Reviews}.
type Session struct {
	Manager  *stream.Manager
	Events   *eventstore.Store
	Progress *progress.Aggregator
	Reviews  *review.Queue

	logger *zap.Logger

	mu     sync.Mutex
	stages StageResolver
	sub    stream.Subscription
}

// New builds a disconnected Session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Stream.Logger == nil {
		opts.Stream.Logger = logger
	}
	stages := opts.Stages
	if stages == nil {
		stages = func(string) progress.Table { return progress.DefaultStages() }
	}

	s := &Session{
		Manager:  stream.NewManager(opts.Transport, opts.Stream),
		Events:   eventstore.New(logger),
		Progress: progress.New(nil, logger),
		Reviews:  review.New(opts.Reviews, logger),
		logger:   logger.With(zap.String("component", "session")),
		stages:   stages,
	}

	s.Events.Attach(s.Manager)
	s.Progress.Attach(s.Events)
	s.Reviews.Attach(s.Events)
	// Registered after the store so derived state is already cleared.
	s.sub = s.Manager.OnTargetChange(s.targetChanged)
	return s
}

func (s *Session) targetChanged(tc stream.TargetChange) {
	if tc.Current == "" {
		return
	}
	s.mu.Lock()
	table := s.stages(tc.Current)
	s.mu.Unlock()

	s.Progress.SetStages(table)
	s.Reviews.Refresh()
	s.logger.Debug("target activated",
		zap.String("target", tc.Current),
		zap.Int("stages", len(table)))
}

// SetStageResolver replaces the resolver. It applies from the next
// target change.
func (s *Session) SetStageResolver(fn StageResolver) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.stages = fn
	s.mu.Unlock()
}

// Connect switches the live feed to target.
func (s *Session) Connect(target string) {
	s.Manager.Connect(target)
}

// Disconnect stops the feed and clears derived state.
func (s *Session) Disconnect() {
	s.Manager.Disconnect()
}

// Target returns the live target.
func (s *Session) Target() string {
	return s.Manager.Target()
}

// Close disconnects and releases every listener and background fetch.
func (s *Session) Close() {
	s.sub.Unsubscribe()
	s.Manager.Close()
	s.Reviews.Close()
	s.Progress.Detach()
	s.Events.Detach()
}
