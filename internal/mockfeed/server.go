// Package mockfeed is a scripted stand-in for the AIDEN backend: a
// per-project event feed over websockets and an in-memory review API.
// aiden-mockfeed serves it for demos and the client tests run against it.
package mockfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures a Server.
type Options struct {
	// Token, when set, is required as a bearer token or ?token= parameter.
	Token string
	// Stages drives Run. Defaults to progress.DefaultStages.
	Stages progress.Table
	// StepInterval is the pause between scripted events.
	StepInterval time.Duration
	Logger       *zap.Logger
}

// Server serves /ws/{project} and /api/v1/reviews.
type Server struct {
	opts    Options
	logger  *zap.Logger
	hub     *hub
	reviews *ReviewStore
	mux     *http.ServeMux
}

func NewServer(opts Options) *Server {
	if opts.Stages == nil {
		opts.Stages = progress.DefaultStages()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mockfeed"))

	s := &Server{
		opts:    opts,
		logger:  logger,
		hub:     newHub(logger),
		reviews: NewReviewStore(),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /ws/{project}", s.handleWS)
	s.mux.HandleFunc("GET /api/v1/reviews", s.handleListReviews)
	s.mux.HandleFunc("GET /api/v1/reviews/{id}", s.handleGetReview)
	s.mux.HandleFunc("POST /api/v1/reviews/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/v1/reviews/{id}/reject", s.handleReject)
	s.mux.HandleFunc("POST /api/v1/reviews/{id}/request-revision", s.handleRevision)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Reviews exposes the review table.
func (s *Server) Reviews() *ReviewStore {
	return s.reviews
}

// ClientCount returns the number of feed clients for project.
func (s *Server) ClientCount(project string) int {
	return s.hub.count(project)
}

// Publish sends an event to every client of project in the event-bus
// shape: {event_type, project_id, data}.
func (s *Server) Publish(project, eventType string, data map[string]any) {
	msg := busMessage{EventType: eventType, ProjectID: project, Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.hub.broadcast(project, payload)
}

// Close drops every feed client.
func (s *Server) Close() {
	s.hub.closeAll()
}

type busMessage struct {
	EventType string         `json:"event_type"`
	ProjectID string         `json:"project_id"`
	Data      map[string]any `json:"data"`
}

var (
	pongFrame        = []byte(`{"type":"pong"}`)
	invalidJSONFrame = []byte(`{"type":"error","message":"Invalid JSON"}`)
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}

	c := s.hub.add(conn, r.PathValue("project"))
	go func() {
		defer s.hub.remove(c)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg stream.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.hub.sendTo(c, invalidJSONFrame)
				continue
			}
			switch msg.Action {
			case stream.ActionPing:
				s.hub.sendTo(c, pongFrame)
			case stream.ActionSubscribe, stream.ActionUnsubscribe:
				s.logger.Debug("channel action", zap.String("action", msg.Action), zap.String("channel", msg.Channel))
			}
		}
	}()
}

func (s *Server) authorize(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.opts.Token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.Token
}

// checkOrigin accepts non-browser clients and loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	host := parsed.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("mock feed listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
