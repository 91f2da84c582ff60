package feed

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quotestream/logger"
)

// Option customises a Manager.
type Option func(*Manager)

// WithDialer replaces the default WebSocket transport.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock replaces the wall clock used for reconnect scheduling.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithReconnectDelay overrides ReconnectDelay. Intended for tests.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.reconnectDelay = d }
}

// WithLogger sets the logger the Manager writes to.
func WithLogger(l *logger.Log) Option {
	return func(m *Manager) { m.log = l.WithComponent("feed") }
}

// Manager owns the single connection to the quote feed and keeps it alive.
type Manager struct {
	cfg            ConnectionConfig
	dialer         Dialer
	clock          Clock
	reconnectDelay time.Duration
	log            *logger.Entry

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64 // identifies the active conn; events from older ones are dropped
	session  string
	timer    Timer
	timerSeq uint64
	stopped  bool

	hooksMu     sync.RWMutex
	onConnected func()
	onMessage   func(string)
	onError     func(error)
	onState     func(from, to State)
}

// New creates a Manager for cfg. Host and access token must be set.
func New(cfg ConnectionConfig, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:            cfg.clone(),
		clock:          realClock{},
		reconnectDelay: ReconnectDelay,
		log:            logger.GetLogger().WithComponent("feed"),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &WebSocketDialer{}
	}
	m.log = m.log.WithField("url", m.cfg.RedactedURL())
	return m, nil
}

// OnConnected registers the hook fired once per successful connect.
func (m *Manager) OnConnected(fn func()) {
	m.hooksMu.Lock()
	m.onConnected = fn
	m.hooksMu.Unlock()
}

// OnMessage registers the hook fired once per non-keepalive text frame.
func (m *Manager) OnMessage(fn func(string)) {
	m.hooksMu.Lock()
	m.onMessage = fn
	m.hooksMu.Unlock()
}

// OnError registers the hook fired for every transport error.
func (m *Manager) OnError(fn func(error)) {
	m.hooksMu.Lock()
	m.onError = fn
	m.hooksMu.Unlock()
}

// OnStateChange registers the hook fired on every state transition.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.hooksMu.Lock()
	m.onState = fn
	m.hooksMu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the feed connection is up.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Symbols returns a copy of the configured symbols.
func (m *Manager) Symbols() []string {
	return append([]string(nil), m.cfg.Symbols...)
}

// Connect opens the feed connection. It is a no-op while a connection is
// already being established or up, and fails with ErrInvalidConfig when no
// URL can be built.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.stopped = false
	var n notifications
	err := m.dialLocked(&n)
	m.mu.Unlock()

	m.dispatch(n)
	return err
}

// Disconnect closes the connection and cancels any pending reconnect. The
// Manager stays down until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	m.cancelTimerLocked()

	var n notifications
	n.discard = m.conn
	m.conn = nil
	m.gen++
	if m.state != StateIdle {
		m.setStateLocked(&n, StateDisconnected)
	}
	m.mu.Unlock()

	m.log.Info("disconnect requested")
	m.dispatch(n)
}

// Send writes text as a single frame on the active connection.
func (m *Manager) Send(text string) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteText(text)
}

// SubscribeToStocks sends a pre-built subscription request verbatim. The
// request is dropped when not connected; callers re-send from the connected
// hook.
func (m *Manager) SubscribeToStocks(request string) {
	if err := m.Send(request); err != nil {
		if errors.Is(err, ErrNotConnected) {
			m.log.Debug("not connected, subscription request dropped")
			return
		}
		m.log.WithError(err).Warn("failed to send subscription request")
	}
}

// dialLocked replaces the active conn with a fresh one and starts it once the
// lock is released.
func (m *Manager) dialLocked(n *notifications) error {
	rawURL, err := m.cfg.URL()
	if err != nil {
		m.log.WithError(err).Error("cannot build feed url")
		return err
	}

	m.cancelTimerLocked()
	n.discard = m.conn

	m.gen++
	gen := m.gen
	m.session = uuid.NewString()
	m.conn = m.dialer.Open(Request{URL: rawURL, Timeout: ConnectTimeout}, func(ev Event) {
		m.handleEvent(gen, ev)
	})
	n.start = m.conn
	m.setStateLocked(n, StateConnecting)

	m.log.WithField("session_id", m.session).Info("connecting to feed")
	return nil
}

func (m *Manager) handleEvent(gen uint64, ev Event) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.log.WithField("event", ev.Kind.String()).Debug("ignoring event from replaced connection")
		return
	}

	log := m.log.WithField("session_id", m.session)
	var n notifications

	switch ev.Kind {
	case EventConnected:
		m.setStateLocked(&n, StateConnected)
		n.connected = true
		log.Info("feed connected")
		logger.IncrementCounter("feed_connects")
		log.LogMetric("feed", "feed_connects", 1, "counter", nil)

	case EventDisconnected:
		m.setStateLocked(&n, StateDisconnected)
		log.WithFields(logger.Fields{"reason": ev.Reason, "code": ev.Code}).Warn("feed disconnected")
		m.scheduleReconnectLocked(log)

	case EventText:
		if strings.Contains(ev.Text, keepaliveMarker) {
			logger.IncrementCounter("feed_keepalive")
			break
		}
		logger.RecordChannelMessage("feed_text", len(ev.Text))
		n.message = &ev.Text

	case EventBinary:
		logger.RecordChannelMessage("feed_binary", len(ev.Data))
		log.WithField("bytes", len(ev.Data)).Debug("binary frame received")

	case EventPing, EventPong, EventViabilityChanged:

	case EventReconnectSuggested:
		log.Info("transport suggested reconnect")
		m.scheduleReconnectLocked(log)

	case EventCancelled:
		m.setStateLocked(&n, StateDisconnected)
		log.Info("feed connection cancelled")

	case EventError:
		m.setStateLocked(&n, StateDisconnected)
		n.err = ev.Err
		log.WithError(ev.Err).Warn("feed transport error")
		logger.IncrementCounter("feed_errors")
		log.LogMetric("feed", "feed_errors", 1, "counter", nil)
		m.scheduleReconnectLocked(log)
	}
	m.mu.Unlock()

	m.dispatch(n)
}

// scheduleReconnectLocked arms the single reconnect timer, replacing any
// pending one.
func (m *Manager) scheduleReconnectLocked(log *logger.Entry) {
	if m.stopped {
		return
	}
	m.cancelTimerLocked()

	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(m.reconnectDelay, func() {
		m.reconnect(seq)
	})

	logger.IncrementCounter("feed_reconnects_scheduled")
	log.WithField("delay", m.reconnectDelay.String()).Info("reconnect scheduled")
	log.LogMetric("feed", "feed_reconnects_scheduled", 1, "counter", nil)
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.stopped {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	var n notifications
	err := m.dialLocked(&n)
	m.mu.Unlock()

	if err != nil {
		m.log.WithError(err).Error("reconnect aborted")
	}
	m.dispatch(n)
}

type transition struct {
	from, to State
}

// notifications collects side effects decided under m.mu so they can run
// after it is released.
type notifications struct {
	discard     Conn
	start       Conn
	transitions []transition
	connected   bool
	message     *string
	err         error
}

func (m *Manager) setStateLocked(n *notifications, to State) {
	if m.state == to {
		return
	}
	n.transitions = append(n.transitions, transition{from: m.state, to: to})
	m.state = to
}

func (m *Manager) dispatch(n notifications) {
	if n.discard != nil {
		n.discard.Disconnect()
	}

	m.hooksMu.RLock()
	onState, onConnected, onError, onMessage := m.onState, m.onConnected, m.onError, m.onMessage
	m.hooksMu.RUnlock()

	if onState != nil {
		for _, t := range n.transitions {
			onState(t.from, t.to)
		}
	}
	if n.connected && onConnected != nil {
		onConnected()
	}
	if n.err != nil && onError != nil {
		onError(n.err)
	}
	if n.message != nil && onMessage != nil {
		onMessage(*n.message)
	}

	if n.start != nil {
		n.start.Connect()
	}
}
