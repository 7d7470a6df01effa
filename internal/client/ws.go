package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	// readTimeout must exceed the keep-alive interval; every frame,
	// including pongs, pushes the deadline out.
	readTimeout = 75 * time.Second
)

// WSTransport opens gorilla/websocket connections for the stream manager.
type WSTransport struct {
	dialer *websocket.Dialer
	token  string
	logger *zap.Logger
}

// NewWSTransport creates a transport that authenticates with token when set.
func NewWSTransport(token string, logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = dialTimeout
	return &WSTransport{
		dialer: &d,
		token:  token,
		logger: logger.With(zap.String("component", "ws")),
	}
}

// Open starts dialing in the background and returns immediately.
func (t *WSTransport) Open(url string, h stream.Handlers) stream.Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSocket{handlers: &h, cancel: cancel, logger: t.logger}
	go s.run(ctx, t.dialer, url, t.header())
	return s
}

func (t *WSTransport) header() http.Header {
	if t.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+t.token)
	return h
}

type wsSocket struct {
	logger *zap.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	writeMu  sync.Mutex // serialises all conn writes
	handlers *stream.Handlers
	conn     *websocket.Conn
	open     bool
	closed   bool
}

func (s *wsSocket) run(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) {
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.logger.Debug("dial failed", zap.String("url", url), zap.Error(err))
		if h := s.current(); h != nil {
			h.OnError(err)
			h.OnClose(err)
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.open = true
	s.mu.Unlock()

	if h := s.current(); h != nil {
		h.OnOpen()
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.open = false
			s.mu.Unlock()
			conn.Close()

			h := s.current()
			if h == nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.OnError(err)
			}
			h.OnClose(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if h := s.current(); h != nil {
			h.OnMessage(data)
		}
	}
}

// current returns the handlers, or nil once detached.
func (s *wsSocket) current() *stream.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

func (s *wsSocket) Send(data []byte) error {
	s.mu.Lock()
	conn, open := s.conn, s.open
	s.mu.Unlock()
	if !open || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *wsSocket) Detach() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}

func (s *wsSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.open = false
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return conn.Close()
}
