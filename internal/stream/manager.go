package stream

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/clock"
	"go.uber.org/zap"
)

// Options configures a Manager. Zero durations fall back to the defaults.
type Options struct {
	// BaseURL is the websocket origin, e.g. "ws://127.0.0.1:8000".
	BaseURL       string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	PingInterval  time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Manager owns the one live event-feed socket.
//
// All listener callbacks are delivered through a serial queue: they never
// run concurrently, they observe events in arrival order, and they may call
// back into the Manager. Whichever goroutine finds the queue idle drains it,
// so a caller on an otherwise idle Manager sees its notifications delivered
// before its call returns.
type Manager struct {
	transport Transport
	opts      Options
	clock     clock.Clock
	logger    *zap.Logger

	messages *Registry[Message]
	states   *Registry[State]
	targets  *Registry[TargetChange]

	mu              sync.Mutex
	state           State
	target          string
	sock            Socket
	gen             uint64 // bumped per socket; stale callbacks compare against it
	shouldReconnect bool
	attempt         int
	reconnectTimer  clock.Timer
	reconnectSeq    uint64
	pingTimer       clock.Timer
	pingSeq         uint64
	queue           []delivery
	draining        bool
}

type delivery struct {
	gen uint64 // zero when not tied to a socket
	run func()
}

// NewManager creates a disconnected Manager.
func NewManager(t Transport, opts Options) *Manager {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = DefaultReconnectBase
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = DefaultReconnectMax
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "stream"))

	return &Manager{
		transport: t,
		opts:      opts,
		clock:     opts.Clock,
		logger:    logger,
		messages:  NewRegistry[Message]("message", logger),
		states:    NewRegistry[State]("state", logger),
		targets:   NewRegistry[TargetChange]("target", logger),
		state:     StateDisconnected,
	}
}

// OnMessage registers a listener for domain messages. Pongs are filtered.
func (m *Manager) OnMessage(fn func(Message)) Subscription {
	return m.messages.Add(fn)
}

// OnStateChange registers a listener for connection state transitions.
func (m *Manager) OnStateChange(fn func(State)) Subscription {
	return m.states.Add(fn)
}

// OnTargetChange registers a listener fired when the live target changes,
// before any message for the new target is delivered.
func (m *Manager) OnTargetChange(fn func(TargetChange)) Subscription {
	return m.targets.Add(fn)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Target returns the live target, or "" when disconnected.
func (m *Manager) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Attempt returns the reconnect attempt counter.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Connect opens the feed for target. It is a no-op while already
// connecting or connected to target; a different target is torn down first.
func (m *Manager) Connect(target string) {
	if target == "" {
		m.logger.Warn("connect called without a target")
		return
	}

	m.mu.Lock()
	if m.target == target && (m.state == StateConnecting || m.state == StateConnected) {
		m.mu.Unlock()
		return
	}

	prev := m.target
	old := m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.target = target
	if prev != target {
		change := TargetChange{Previous: prev, Current: target}
		m.enqueueLocked(0, func() { m.targets.Dispatch(change) })
	}
	m.shouldReconnect = true
	m.attempt = 0
	if old != nil {
		// The previous socket is closed outside the lock, before the new
		// one is opened.
		m.mu.Unlock()
		m.closeSocket(old)
		m.mu.Lock()
		if m.target != target || m.sock != nil || !m.shouldReconnect {
			m.mu.Unlock()
			m.drain()
			return
		}
	}
	m.openLocked()
	m.mu.Unlock()

	m.logger.Info("connecting", zap.String("target", target))
	m.drain()
}

// Disconnect tears the connection down and stops reconnection. Timers are
// cancelled before it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	old := m.teardownLocked()
	prev := m.target
	m.target = ""
	if prev != "" {
		change := TargetChange{Previous: prev}
		m.enqueueLocked(0, func() { m.targets.Dispatch(change) })
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.closeSocket(old)
	if prev != "" {
		m.logger.Info("disconnected", zap.String("target", prev))
	}
	m.drain()
}

// Close disconnects and drops every listener.
func (m *Manager) Close() {
	m.Disconnect()
	m.messages.Clear()
	m.states.Clear()
	m.targets.Clear()
}

// Send writes v as JSON if the socket is open. Otherwise the payload is
// dropped with a warning.
func (m *Manager) Send(v any) {
	m.mu.Lock()
	sock := m.sock
	open := m.state == StateConnected && sock != nil && sock.IsOpen()
	m.mu.Unlock()

	if !open {
		m.logger.Warn("send while not connected, dropping payload")
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("send marshal failed", zap.Error(err))
		return
	}
	if err := sock.Send(data); err != nil {
		m.logger.Warn("send failed", zap.Error(err))
	}
}

// Subscribe asks the server to add channel to this connection.
func (m *Manager) Subscribe(channel string) {
	m.Send(ClientMessage{Action: ActionSubscribe, Channel: channel})
}

// Unsubscribe asks the server to drop channel from this connection.
func (m *Manager) Unsubscribe(channel string) {
	m.Send(ClientMessage{Action: ActionUnsubscribe, Channel: channel})
}

// URL returns the feed address for target.
func (m *Manager) URL(target string) string {
	return strings.TrimRight(m.opts.BaseURL, "/") + "/ws/" + url.PathEscape(target)
}

// openLocked starts a new socket for m.target.
func (m *Manager) openLocked() {
	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.sock = m.transport.Open(m.URL(m.target), Handlers{
		OnOpen:    func() { m.handleOpen(gen) },
		OnMessage: func(data []byte) { m.handleMessage(gen, data) },
		OnError:   func(err error) { m.handleError(gen, err) },
		OnClose:   func(err error) { m.handleClose(gen, err) },
	})
}

// teardownLocked cancels timers and detaches the socket so its close
// cannot schedule a reconnect. The detached socket is returned for the
// caller to close once m.mu is released.
func (m *Manager) teardownLocked() Socket {
	m.cancelReconnectLocked()
	m.stopPingLocked()
	sock := m.sock
	if sock != nil {
		sock.Detach()
		m.sock = nil
	}
	m.gen++
	return sock
}

func (m *Manager) closeSocket(sock Socket) {
	if sock == nil {
		return
	}
	if err := sock.Close(); err != nil {
		m.logger.Debug("socket close", zap.Error(err))
	}
}

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.attempt = 0
	m.setStateLocked(StateConnected)
	m.startPingLocked()
	target := m.target
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("target", target))
	m.drain()
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("dropping malformed message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	if msg.Type == MessageTypePong {
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.enqueueLocked(gen, func() { m.messages.Dispatch(msg) })
	m.mu.Unlock()

	m.drain()
}

// handleError only records the state; the close that follows schedules
// the reconnect.
func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateError)
	m.mu.Unlock()

	m.logger.Warn("socket error", zap.Error(err))
	m.drain()
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopPingLocked()
	m.sock = nil
	m.setStateLocked(StateDisconnected)
	var delay time.Duration
	if m.shouldReconnect {
		delay = m.scheduleReconnectLocked()
	}
	attempt := m.attempt
	m.mu.Unlock()

	m.logger.Info("socket closed",
		zap.NamedError("reason", err),
		zap.Duration("retry_in", delay),
		zap.Int("attempt", attempt))
	m.drain()
}

func (m *Manager) scheduleReconnectLocked() time.Duration {
	m.cancelReconnectLocked()
	delay := Backoff(m.opts.ReconnectBase, m.opts.ReconnectMax, m.attempt)
	m.attempt++
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.fireReconnect(seq) })
	return delay
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

func (m *Manager) fireReconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq || m.reconnectTimer == nil || !m.shouldReconnect {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.openLocked()
	target, attempt := m.target, m.attempt
	m.mu.Unlock()

	m.logger.Info("reconnecting", zap.String("target", target), zap.Int("attempt", attempt))
	m.drain()
}

func (m *Manager) startPingLocked() {
	m.stopPingLocked()
	m.pingSeq++
	seq := m.pingSeq
	m.pingTimer = m.clock.AfterFunc(m.opts.PingInterval, func() { m.firePing(seq) })
}

func (m *Manager) stopPingLocked() {
	if m.pingTimer != nil {
		m.pingTimer.Stop()
		m.pingTimer = nil
	}
	m.pingSeq++
}

func (m *Manager) firePing(seq uint64) {
	m.mu.Lock()
	if seq != m.pingSeq || m.pingTimer == nil {
		m.mu.Unlock()
		return
	}
	m.startPingLocked()
	m.mu.Unlock()

	m.Send(ClientMessage{Action: ActionPing})
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.enqueueLocked(0, func() { m.states.Dispatch(s) })
}

func (m *Manager) enqueueLocked(gen uint64, run func()) {
	m.queue = append(m.queue, delivery{gen: gen, run: run})
}

// drain delivers queued notifications unless another goroutine (or an
// outer frame of this one) is already doing so. Socket-bound deliveries
// whose generation is no longer current are discarded here, so nothing
// from a torn-down socket reaches listeners after the teardown.
func (m *Manager) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		d := m.queue[0]
		m.queue[0] = delivery{}
		m.queue = m.queue[1:]
		if d.gen != 0 && d.gen != m.gen {
			continue
		}
		m.mu.Unlock()
		d.run()
		m.mu.Lock()
	}
	m.queue = nil
	m.draining = false
	m.mu.Unlock()
}
