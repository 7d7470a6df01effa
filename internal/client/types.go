// Package client provides the websocket transport and the REST review
// client for the AIDEN backend. Types mirror the backend's HITL schemas
// without importing backend code.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned when writing to a socket that is not open.
var ErrNotConnected = errors.New("not connected")

// Review statuses.
const (
	ReviewPending  = "pending"
	ReviewInReview = "in_review"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
	ReviewRevision = "revision_requested"
)

// Decisions recorded against a review.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionRevision = "revision_requested"
)

// Review mirrors the backend's HITLReviewResponse.
type Review struct {
	ID              string         `json:"id"`
	ExecutionID     *string        `json:"execution_id"`
	TaskID          *string        `json:"task_id"`
	ReviewType      string         `json:"review_type"`
	Status          string         `json:"status"`
	ContentSnapshot map[string]any `json:"content_snapshot"`
	ReviewerID      *string        `json:"reviewer_id"`
	AssignedAt      *time.Time     `json:"assigned_at"`
	DecidedAt       *time.Time     `json:"decided_at"`
	DeadlineAt      *time.Time     `json:"deadline_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Decision mirrors the backend's ReviewDecisionResponse.
type Decision struct {
	ID        string         `json:"id"`
	ReviewID  string         `json:"review_id"`
	Decision  string         `json:"decision"`
	Feedback  *string        `json:"feedback"`
	Edits     map[string]any `json:"edits"`
	DecidedBy *string        `json:"decided_by"`
	CreatedAt time.Time      `json:"created_at"`
}

// envelope is the backend's success/error response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail is the body of an error envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// APIError is a non-2xx response or a success=false envelope.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
