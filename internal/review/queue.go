// Package review maintains the queue of agent outputs awaiting a human
// decision. The queue is reconciled by refetching the full pending list
// whenever the feed reports a new review request.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/aiden-platform/aiden-watch/internal/eventstore"
	"github.com/aiden-platform/aiden-watch/internal/logging"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var (
	// ErrFeedbackRequired is returned by Reject and RequestRevision when
	// feedback is blank. No request is sent.
	ErrFeedbackRequired = errors.New("feedback is required")
	// ErrInvalidReviewID is returned when an id is not a UUID.
	ErrInvalidReviewID = errors.New("invalid review id")
	// ErrReviewGone is returned by Open when the review was decided or the
	// queue was reset while it was being fetched.
	ErrReviewGone = errors.New("review is no longer pending")
)

const defaultFetchTimeout = 15 * time.Second

// Service is the review REST surface. *client.HTTPClient implements it.
type Service interface {
	ListPendingReviews(ctx context.Context) ([]client.Review, error)
	GetReview(ctx context.Context, id string) (*client.Review, error)
	ApproveReview(ctx context.Context, id, feedback string) (*client.Decision, error)
	RejectReview(ctx context.Context, id, feedback string) (*client.Decision, error)
	RequestRevision(ctx context.Context, id, feedback string, edits map[string]any) (*client.Decision, error)
}

// Source is the part of eventstore.Store the queue listens to.
type Source interface {
	OnEvent(fn func(eventstore.Event)) stream.Subscription
	OnReset(fn func()) stream.Subscription
}

// Snapshot is a copy of the queue state.
type Snapshot struct {
	Pending  []client.Review
	Selected *client.Review
	Loading  bool
	Err      error
}

// Queue holds the pending reviews for the live target.
type Queue struct {
	svc          Service
	logger       *zap.Logger
	fetchTimeout time.Duration
	onChange     *stream.Registry[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	pending  []client.Review
	selected *client.Review
	fetchSeq uint64 // latest fetch wins
	epoch    uint64 // bumped by Reset; fetches from an older epoch are dropped
	loading  int
	lastErr  error
	subs     []stream.Subscription
}

// New creates an empty Queue backed by svc.
func New(svc Service, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "review"))
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		svc:          svc,
		logger:       logger,
		fetchTimeout: defaultFetchTimeout,
		onChange:     stream.NewRegistry[Snapshot]("review", logger),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Attach refetches on every review request seen in src and clears the
// queue when src resets.
func (q *Queue) Attach(src Source) {
	evSub := src.OnEvent(func(e eventstore.Event) {
		if e.Kind() == eventstore.ReviewRequested {
			q.Refresh()
		}
	})
	resetSub := src.OnReset(q.Reset)

	q.mu.Lock()
	q.subs = append(q.subs, evSub, resetSub)
	q.mu.Unlock()
}

// Detach stops listening to every attached source.
func (q *Queue) Detach() {
	q.mu.Lock()
	subs := q.subs
	q.subs = nil
	q.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Activate loads the pending list and waits for the result. Use it where
// the caller can block and wants the error; listeners use Refresh.
func (q *Queue) Activate(ctx context.Context) error {
	return q.fetch(ctx, q.begin())
}

// Refresh starts a background refetch. It never blocks. A Reset after
// Refresh returns discards its result.
func (q *Queue) Refresh() {
	tok := q.begin()
	q.wg.Go(func() {
		defer logging.LogPanic(q.logger, "review-refetch", nil)
		if err := q.fetch(q.ctx, tok); err != nil {
			q.logger.Warn("refetch pending reviews failed", zap.Error(err))
		}
	})
}

// Wait blocks until background refetches finish.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close cancels background work, detaches and waits.
func (q *Queue) Close() {
	q.cancel()
	q.Detach()
	q.wg.Wait()
}

type fetchToken struct {
	seq, epoch uint64
}

func (q *Queue) begin() fetchToken {
	q.mu.Lock()
	q.fetchSeq++
	tok := fetchToken{seq: q.fetchSeq, epoch: q.epoch}
	q.loading++
	q.mu.Unlock()
	q.notify()
	return tok
}

func (q *Queue) fetch(ctx context.Context, tok fetchToken) error {
	ctx, cancel := context.WithTimeout(ctx, q.fetchTimeout)
	items, err := q.svc.ListPendingReviews(ctx)
	cancel()

	q.mu.Lock()
	q.loading--
	if tok.seq != q.fetchSeq || tok.epoch != q.epoch {
		q.mu.Unlock()
		q.logger.Debug("discarding stale review fetch", zap.Uint64("seq", tok.seq))
		q.notify()
		return nil
	}
	if err != nil {
		q.lastErr = err
		q.mu.Unlock()
		q.notify()
		return fmt.Errorf("list pending reviews: %w", err)
	}
	q.pending = items
	q.lastErr = nil
	if q.selected != nil && indexOf(items, q.selected.ID) < 0 {
		q.selected = nil
	}
	q.mu.Unlock()

	q.logger.Debug("pending reviews loaded", zap.Int("count", len(items)))
	q.notify()
	return nil
}

// Approve records an approval. Feedback is optional.
func (q *Queue) Approve(ctx context.Context, id, feedback string) (*client.Decision, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	d, err := q.svc.ApproveReview(ctx, id, feedback)
	if err != nil {
		return nil, fmt.Errorf("approve review %s: %w", id, err)
	}
	q.resolve(id)
	return d, nil
}

// Reject records a rejection. Feedback is required.
func (q *Queue) Reject(ctx context.Context, id, feedback string) (*client.Decision, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, ErrFeedbackRequired
	}
	d, err := q.svc.RejectReview(ctx, id, feedback)
	if err != nil {
		return nil, fmt.Errorf("reject review %s: %w", id, err)
	}
	q.resolve(id)
	return d, nil
}

// RequestRevision sends the item back with feedback and optional edits.
// Feedback is required.
func (q *Queue) RequestRevision(ctx context.Context, id, feedback string, edits map[string]any) (*client.Decision, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, ErrFeedbackRequired
	}
	d, err := q.svc.RequestRevision(ctx, id, feedback, edits)
	if err != nil {
		return nil, fmt.Errorf("request revision for review %s: %w", id, err)
	}
	q.resolve(id)
	return d, nil
}

// resolve drops a decided item. In-flight fetches may predate the decision
// and are invalidated.
func (q *Queue) resolve(id string) {
	q.mu.Lock()
	if i := indexOf(q.pending, id); i >= 0 {
		q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
	}
	if q.selected != nil && q.selected.ID == id {
		q.selected = nil
	}
	q.fetchSeq++
	q.mu.Unlock()

	q.logger.Info("review resolved", zap.String("review_id", id))
	q.notify()
}

// Open fetches the full review and marks it selected. The result is
// dropped with ErrReviewGone if the review left the queue meanwhile.
func (q *Queue) Open(ctx context.Context, id string) (*client.Review, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	q.mu.Lock()
	epoch := q.epoch
	q.mu.Unlock()

	r, err := q.svc.GetReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}

	q.mu.Lock()
	if q.epoch != epoch || indexOf(q.pending, id) < 0 {
		q.mu.Unlock()
		q.logger.Debug("dropping stale review detail", zap.String("review_id", id))
		return nil, fmt.Errorf("open review %s: %w", id, ErrReviewGone)
	}
	q.selected = r
	if i := indexOf(q.pending, id); i >= 0 {
		q.pending[i] = *r
	}
	q.mu.Unlock()

	q.notify()
	return r, nil
}

// CloseOpen clears the selection.
func (q *Queue) CloseOpen() {
	q.mu.Lock()
	q.selected = nil
	q.mu.Unlock()
	q.notify()
}

// Reset empties the queue and drops results of in-flight fetches.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.epoch++
	q.pending = nil
	q.selected = nil
	q.lastErr = nil
	q.mu.Unlock()
	q.notify()
}

// Pending returns a copy of the pending list.
func (q *Queue) Pending() []client.Review {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]client.Review, len(q.pending))
	copy(out, q.pending)
	return out
}

// Selected returns the open item, or nil.
func (q *Queue) Selected() *client.Review {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.selected == nil {
		return nil
	}
	r := *q.selected
	return &r
}

// LastError returns the error of the latest fetch, or nil.
func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() Snapshot {
	s := Snapshot{
		Pending: make([]client.Review, len(q.pending)),
		Loading: q.loading > 0,
		Err:     q.lastErr,
	}
	copy(s.Pending, q.pending)
	if q.selected != nil {
		r := *q.selected
		s.Selected = &r
	}
	return s
}

// OnChange registers fn for every queue change.
func (q *Queue) OnChange(fn func(Snapshot)) stream.Subscription {
	return q.onChange.Add(fn)
}

func (q *Queue) notify() {
	q.onChange.Dispatch(q.Snapshot())
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidReviewID, id)
	}
	return nil
}

func indexOf(items []client.Review, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
