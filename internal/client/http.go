package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const reviewsPath = "/api/v1/reviews"

// HTTPClient makes REST calls to the AIDEN backend.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListPendingReviews fetches GET /api/v1/reviews.
func (c *HTTPClient) ListPendingReviews(ctx context.Context) ([]Review, error) {
	var out []Review
	if err := c.get(ctx, reviewsPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReview fetches GET /api/v1/reviews/{id}.
func (c *HTTPClient) GetReview(ctx context.Context, id string) (*Review, error) {
	var r Review
	if err := c.get(ctx, reviewPath(id, ""), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ApproveReview sends POST /api/v1/reviews/{id}/approve.
func (c *HTTPClient) ApproveReview(ctx context.Context, id, feedback string) (*Decision, error) {
	return c.decide(ctx, reviewPath(id, "approve"), decisionBody{Feedback: optional(feedback)})
}

// RejectReview sends POST /api/v1/reviews/{id}/reject.
func (c *HTTPClient) RejectReview(ctx context.Context, id, feedback string) (*Decision, error) {
	return c.decide(ctx, reviewPath(id, "reject"), decisionBody{Feedback: optional(feedback)})
}

// RequestRevision sends POST /api/v1/reviews/{id}/request-revision.
func (c *HTTPClient) RequestRevision(ctx context.Context, id, feedback string, edits map[string]any) (*Decision, error) {
	return c.decide(ctx, reviewPath(id, "request-revision"), decisionBody{Feedback: optional(feedback), Edits: edits})
}

type decisionBody struct {
	Feedback *string        `json:"feedback"`
	Edits    map[string]any `json:"edits,omitempty"`
}

func (c *HTTPClient) decide(ctx context.Context, path string, body decisionBody) (*Decision, error) {
	var d Decision
	if err := c.post(ctx, path, body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func reviewPath(id, action string) string {
	p := reviewsPath + "/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

// do sends req and unwraps the {success, data} envelope into out.
func (c *HTTPClient) do(req *http.Request, path string, out any) error {
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", req.Method, path, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		apiErr := &APIError{Method: req.Method, Path: path, StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: decode envelope: %w", req.Method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", req.Method, path, err)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
