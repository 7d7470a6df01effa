package mockfeed

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool               `json:"success"`
	Error   client.ErrorDetail `json:"error"`
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data}); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: client.ErrorDetail{Code: code, Message: message}})
}

// reviewID validates the {id} path value, writing the error response when
// it is not a UUID.
func (s *Server) reviewID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
		return "", false
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "review_id must be a UUID")
		return "", false
	}
	return id, true
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
		return
	}
	s.writeData(w, s.reviews.Pending())
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.reviewID(w, r)
	if !ok {
		return
	}
	review, err := s.reviews.Get(id)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}
	s.writeData(w, review)
}

type decisionRequest struct {
	Feedback *string        `json:"feedback"`
	Edits    map[string]any `json:"edits"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, client.DecisionApproved, false)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, client.DecisionRejected, true)
}

func (s *Server) handleRevision(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, client.DecisionRevision, true)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, decision string, feedbackRequired bool) {
	id, ok := s.reviewID(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if feedbackRequired && (req.Feedback == nil || strings.TrimSpace(*req.Feedback) == "") {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "feedback is required")
		return
	}
	if decision == client.DecisionRevision && req.Edits == nil {
		req.Edits = map[string]any{}
	}

	d, err := s.reviews.Decide(id, decision, req.Feedback, req.Edits)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}
	s.logger.Info("review decided", zap.String("review_id", id), zap.String("decision", decision))
	s.writeData(w, d)
}

func (s *Server) writeStoreError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, errReviewNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "HITLReview not found: "+id)
	case errors.Is(err, errReviewDecided):
		writeError(w, http.StatusConflict, "CONFLICT", "HITLReview already decided: "+id)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
