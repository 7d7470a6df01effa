package mockfeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/google/uuid"
)

var (
	errReviewNotFound = errors.New("review not found")
	errReviewDecided  = errors.New("review already decided")
)

// ReviewStore is an in-memory review table.
type ReviewStore struct {
	mu      sync.Mutex
	order   []string
	reviews   map[string]*client.Review
	decisions map[string]client.Decision
	waiters   map[string][]chan client.Decision
}

func NewReviewStore() *ReviewStore {
	return &ReviewStore{
		reviews:   make(map[string]*client.Review),
		decisions: make(map[string]client.Decision),
		waiters:   make(map[string][]chan client.Decision),
	}
}

// Create adds a pending review.
func (s *ReviewStore) Create(executionID, reviewType string, snapshot map[string]any) client.Review {
	now := time.Now().UTC()
	r := &client.Review{
		ID:              uuid.NewString(),
		ReviewType:      reviewType,
		Status:          client.ReviewPending,
		ContentSnapshot: snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if executionID != "" {
		r.ExecutionID = &executionID
	}

	s.mu.Lock()
	s.reviews[r.ID] = r
	s.order = append(s.order, r.ID)
	s.mu.Unlock()
	return *r
}

// Pending returns pending and in-review items, oldest first.
func (s *ReviewStore) Pending() []client.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []client.Review{}
	for _, id := range s.order {
		r := s.reviews[id]
		if r.Status == client.ReviewPending || r.Status == client.ReviewInReview {
			out = append(out, *r)
		}
	}
	return out
}

func (s *ReviewStore) Get(id string) (client.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return client.Review{}, errReviewNotFound
	}
	return *r, nil
}

// Decide records a decision and wakes anyone waiting on it.
func (s *ReviewStore) Decide(id, decision string, feedback *string, edits map[string]any) (client.Decision, error) {
	s.mu.Lock()
	r, ok := s.reviews[id]
	if !ok {
		s.mu.Unlock()
		return client.Decision{}, errReviewNotFound
	}
	if r.Status != client.ReviewPending && r.Status != client.ReviewInReview {
		s.mu.Unlock()
		return client.Decision{}, errReviewDecided
	}

	now := time.Now().UTC()
	r.Status = decision
	r.DecidedAt = &now
	r.UpdatedAt = now
	d := client.Decision{
		ID:        uuid.NewString(),
		ReviewID:  id,
		Decision:  decision,
		Feedback:  feedback,
		Edits:     edits,
		CreatedAt: now,
	}
	s.decisions[id] = d
	waiters := s.waiters[id]
	delete(s.waiters, id)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- d
	}
	return d, nil
}

// Wait blocks until id is decided or ctx ends.
func (s *ReviewStore) Wait(ctx context.Context, id string) (client.Decision, error) {
	ch := make(chan client.Decision, 1)
	s.mu.Lock()
	if _, ok := s.reviews[id]; !ok {
		s.mu.Unlock()
		return client.Decision{}, errReviewNotFound
	}
	if d, ok := s.decisions[id]; ok {
		s.mu.Unlock()
		return d, nil
	}
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return client.Decision{}, ctx.Err()
	}
}
