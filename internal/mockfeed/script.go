package mockfeed

import (
	"context"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const agentName = "requirements_analyzer"

// run emits events the way the agent emitter does: the payload is wrapped
// with execution metadata under data.data.
type run struct {
	s           *Server
	project     string
	executionID string
}

func (r *run) emit(eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	r.s.Publish(r.project, eventType, map[string]any{
		"event_type":   eventType,
		"agent_name":   agentName,
		"execution_id": r.executionID,
		"project_id":   r.project,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"data":         payload,
	})
}

// Run plays one agent execution for project: start, every stage, a review
// at each hitl_* stage, then completion. It blocks on each review until a
// decision arrives. A rejection ends the run with agent.error.
func (s *Server) Run(ctx context.Context, project string) error {
	r := &run{s: s, project: project, executionID: uuid.NewString()}
	s.logger.Info("scripted run started", zap.String("project", project), zap.String("execution_id", r.executionID))

	r.emit("agent.started", map[string]any{"agent_name": agentName})
	for _, stage := range s.opts.Stages {
		if err := s.pause(ctx); err != nil {
			return err
		}
		start := time.Now()
		r.emit("agent.node.enter", map[string]any{"node_name": stage.Name})

		if strings.HasPrefix(stage.Name, "hitl_") {
			reviewType := strings.TrimPrefix(stage.Name, "hitl_")
			review := s.reviews.Create(r.executionID, reviewType, map[string]any{
				"stage":   stage.Name,
				"summary": "## " + stage.Name + "\n\nGenerated content awaiting review.",
			})
			r.emit("agent.hitl.requested", map[string]any{
				"review_id":        review.ID,
				"review_type":      reviewType,
				"content_snapshot": review.ContentSnapshot,
			})

			d, err := s.reviews.Wait(ctx, review.ID)
			if err != nil {
				return err
			}
			r.emit("agent.hitl.resolved", map[string]any{"review_id": review.ID, "decision": d.Decision})
			if d.Decision == client.DecisionRejected {
				msg := "review rejected"
				if d.Feedback != nil {
					msg += ": " + *d.Feedback
				}
				r.emit("agent.error", map[string]any{"error": msg})
				return nil
			}
		}

		r.emit("agent.node.exit", map[string]any{
			"node_name":   stage.Name,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	r.emit("agent.completed", map[string]any{"deliverables": []any{}})
	s.logger.Info("scripted run completed", zap.String("project", project))
	return nil
}

func (s *Server) pause(ctx context.Context) error {
	if s.opts.StepInterval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.StepInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
