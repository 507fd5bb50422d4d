package session

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-voice/internal/voice"
)

// defaultInboxSize bounds messages buffered between the transport callback
// and the dispatch goroutine.
const defaultInboxSize = 256

// Logger is the logging surface the manager needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Manager.
type Options struct {
	// Dial creates transports. Required.
	Dial DialFunc

	// Speaker receives text to speak. Optional.
	Speaker voice.Speaker

	// Notifier receives status and message events. Optional.
	Notifier voice.Notifier

	// Logger for lifecycle events. Optional.
	Logger Logger

	// ReconnectDelay before a retry. Defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// InboxSize bounds buffered inbound messages. Messages arriving while
	// it is full are dropped and counted. Defaults to 256.
	InboxSize int

	// OnStateChange observes lifecycle transitions. It is called with the
	// manager lock held and must not block or call back into the Manager.
	// Optional.
	OnStateChange func(State)
}

// inboxItem is a message waiting for dispatch, tagged with the session
// generation that received it.
type inboxItem struct {
	gen uint64
	msg voice.InboundMessage
}

// session is one live transport and the generation it belongs to.
type session struct {
	id        uint64
	transport Transport
	cfg       ConnectionConfig
}

// Manager owns at most one broker session at a time.
type Manager struct {
	dial       DialFunc
	notifier   voice.Notifier
	dispatcher *voice.Dispatcher
	logger     Logger
	scheduler  *Scheduler
	onState    func(State)

	mu           sync.Mutex
	state        State
	cfg          ConnectionConfig
	hasConfig    bool
	current      *session
	reconnectSeq uint64
	attempts     int
	lastStatus   string
	lastError    string
	reported     State
	connectedAt  time.Time
	closed       bool

	// generation is bumped by every connect attempt and by Stop. Read
	// without the lock on the message fast path.
	generation atomic.Uint64

	inbox     chan inboxItem
	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Manager in the idle state and starts its dispatch goroutine.
// Call Close to release it.
func New(opts Options) (*Manager, error) {
	if opts.Dial == nil {
		return nil, ErrNoDialer
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	inboxSize := opts.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}

	m := &Manager{
		dial:       opts.Dial,
		notifier:   notifier,
		dispatcher: voice.NewDispatcher(opts.Speaker, notifier, logger),
		logger:     logger,
		scheduler:  NewScheduler(opts.ReconnectDelay),
		onState:    opts.OnStateChange,
		state:      StateIdle,
		reported:   StateIdle,
		inbox:      make(chan inboxItem, inboxSize),
		done:       make(chan struct{}),
	}

	m.wg.Add(1)
	go m.dispatchLoop()

	return m, nil
}

// Start validates cfg and connects to the broker. Any existing session is
// torn down first and any pending reconnect is cancelled.
//
// Start returns once the connect request is issued; progress is reported
// through the notifier and Status.
func (m *Manager) Start(cfg ConnectionConfig) error {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cfg = cfg
	m.hasConfig = true
	m.attempts = 0
	m.lastError = ""
	gen, stale := m.beginAttemptLocked()
	m.mu.Unlock()

	m.finishAttempt(gen, cfg, stale)
	return nil
}

// Stop cancels any pending reconnect, tears down the session and moves to
// the stopped state. Calling Stop again is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.cancelReconnectLocked()
	m.generation.Add(1)
	stale := m.detachLocked()
	m.state = StateStopped
	m.connectedAt = time.Time{}
	m.statusLocked("stopped")
	m.mu.Unlock()

	if stale != nil {
		m.teardown(stale)
	}
}

// Close stops the manager and its dispatch goroutine. Start fails with
// ErrClosed afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.Stop()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		close(m.done)
		m.wg.Wait()
	})
}

// Status returns a snapshot of the manager state.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:            m.state,
		LastStatus:       m.lastStatus,
		LastError:        m.lastError,
		ReconnectPending: m.scheduler.Pending(),
		Attempts:         m.attempts,
		ConnectedAt:      m.connectedAt,
		Generation:       m.generation.Load(),
		DroppedMessages:  m.dropped.Load(),
	}
	if m.hasConfig {
		snap.BrokerURL = m.cfg.BrokerURL()
		snap.ClientID = m.cfg.ClientID
		snap.Topics = slices.Clone(m.cfg.Topics)
	}
	return snap
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// beginAttemptLocked retires the current session and enters connecting.
// The caller must tear down the returned stale session outside the lock.
func (m *Manager) beginAttemptLocked() (uint64, *session) {
	m.cancelReconnectLocked()
	stale := m.detachLocked()
	gen := m.generation.Add(1)
	m.attempts++
	m.state = StateConnecting
	m.statusLocked("connecting to " + m.cfg.BrokerURL())
	return gen, stale
}

// finishAttempt tears down the previous session, dials and issues the
// connect request for generation gen.
func (m *Manager) finishAttempt(gen uint64, cfg ConnectionConfig, stale *session) {
	if stale != nil {
		m.teardown(stale)
	}

	tr, err := m.dial(cfg, m.handlersFor(gen))

	m.mu.Lock()
	if m.generation.Load() != gen {
		// Superseded by Stop or another Start while dialling.
		m.mu.Unlock()
		if tr != nil {
			m.teardown(&session{id: gen, transport: tr})
		}
		return
	}
	if err != nil {
		m.state = StateFailed
		m.failLocked("connection failed", err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}
	m.current = &session{id: gen, transport: tr, cfg: cfg}
	m.mu.Unlock()

	tok := tr.Connect()
	go m.awaitConnect(gen, tok)
}

func (m *Manager) awaitConnect(gen uint64, tok Token) {
	select {
	case <-tok.Done():
	case <-m.done:
		return
	}
	err := tok.Error()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(gen) {
		return
	}
	if err != nil {
		m.state = StateFailed
		m.failLocked("connection failed", err)
		m.scheduleReconnectLocked()
		return
	}
	m.logger.Debug("connect acknowledged", "generation", gen)
}

func (m *Manager) handlersFor(gen uint64) Handlers {
	return Handlers{
		OnConnected: func(reconnect bool) {
			m.handleConnected(gen, reconnect)
		},
		OnConnectionLost: func(cause error) {
			m.handleConnectionLost(gen, cause)
		},
		OnMessage: func(topic string, payload []byte) {
			m.handleMessage(gen, topic, payload)
		},
	}
}

func (m *Manager) handleConnected(gen uint64, reconnect bool) {
	m.mu.Lock()
	if !m.currentLocked(gen) {
		m.mu.Unlock()
		m.logger.Debug("ignoring stale connect", "generation", gen)
		return
	}
	m.cancelReconnectLocked()
	m.state = StateSubscribing
	m.connectedAt = time.Now()
	m.lastError = ""
	if reconnect {
		m.statusLocked("reconnected to " + m.current.cfg.BrokerURL())
	} else {
		m.statusLocked("connected to " + m.current.cfg.BrokerURL())
	}
	tr := m.current.transport
	topics := slices.Clone(m.current.cfg.Topics)
	m.mu.Unlock()

	tok := tr.Subscribe(topics, QoSAtLeastOnce)
	go m.awaitSubscribe(gen, topics, tok)
}

func (m *Manager) awaitSubscribe(gen uint64, topics []string, tok Token) {
	select {
	case <-tok.Done():
	case <-m.done:
		return
	}
	err := tok.Error()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(gen) || m.state != StateSubscribing {
		return
	}
	if err != nil {
		// The connection stays up; there is no subscribe retry.
		m.failLocked("subscribe failed", err)
		return
	}
	m.state = StateListening
	m.statusLocked("subscribed to topics: " + strings.Join(topics, ", "))
}

func (m *Manager) handleConnectionLost(gen uint64, cause error) {
	if cause == nil {
		cause = errUnknownCause
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(gen) {
		m.logger.Debug("ignoring stale connection loss", "generation", gen)
		return
	}
	m.state = StateDisconnected
	m.connectedAt = time.Time{}
	m.failLocked("connection lost", cause)
	m.scheduleReconnectLocked()
}

// handleMessage runs on the transport's goroutine. It copies the payload
// and hands it to the dispatch goroutine without blocking; a full inbox
// drops the message.
func (m *Manager) handleMessage(gen uint64, topic string, payload []byte) {
	if m.generation.Load() != gen {
		return
	}

	item := inboxItem{
		gen: gen,
		msg: voice.InboundMessage{
			Topic:      topic,
			Payload:    bytes.Clone(payload),
			ReceivedAt: time.Now(),
		},
	}

	select {
	case m.inbox <- item:
	default:
		n := m.dropped.Add(1)
		m.logger.Warn("inbox full, dropping message",
			"topic", topic,
			"dropped_total", n,
		)
	}
}

// dispatchLoop speaks and notifies queued messages in arrival order.
// Messages from a session retired by Stop or Start are discarded.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case item := <-m.inbox:
			if item.gen != m.generation.Load() {
				m.logger.Debug("discarding message from retired session",
					"generation", item.gen,
					"topic", item.msg.Topic,
				)
				continue
			}
			m.dispatcher.Dispatch(item.msg)
		case <-m.done:
			return
		}
	}
}

// reconnect is the scheduled retry for arm sequence seq.
func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	switch {
	case m.state == StateStopped || m.closed || !m.hasConfig:
		m.mu.Unlock()
		return
	case seq != m.reconnectSeq:
		m.mu.Unlock()
		m.logger.Debug("ignoring superseded reconnect", "seq", seq)
		return
	case m.state.Connected():
		m.mu.Unlock()
		m.logger.Debug("reconnect skipped, already connected", "state", string(m.state))
		return
	}
	cfg := m.cfg
	gen, stale := m.beginAttemptLocked()
	m.mu.Unlock()

	m.finishAttempt(gen, cfg, stale)
}

// scheduleReconnectLocked arms the single reconnect slot, replacing any
// pending retry.
func (m *Manager) scheduleReconnectLocked() {
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.scheduler.Schedule(func() { m.reconnect(seq) })
	m.statusLocked(fmt.Sprintf("reconnecting in %s", m.scheduler.Delay()))
}

func (m *Manager) cancelReconnectLocked() {
	m.reconnectSeq++
	m.scheduler.Cancel()
}

// currentLocked reports whether gen is the live session.
func (m *Manager) currentLocked(gen uint64) bool {
	return m.state != StateStopped && m.current != nil && m.current.id == gen
}

func (m *Manager) detachLocked() *session {
	s := m.current
	m.current = nil
	return s
}

// teardown disconnects and releases a transport. Must be called without
// holding m.mu. Transport failures are logged and swallowed.
func (m *Manager) teardown(s *session) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("transport teardown panicked",
				"generation", s.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	defer s.transport.Close()

	s.transport.Disconnect()
	m.logger.Debug("session torn down", "generation", s.id)
}

func (m *Manager) statusLocked(msg string) {
	m.reportStateLocked()
	m.lastStatus = msg
	m.logger.Info("session status", "status", msg, "state", string(m.state))
	m.notifier.NotifyStatus(msg)
}

func (m *Manager) failLocked(what string, err error) {
	m.reportStateLocked()
	msg := what + ": " + err.Error()
	m.lastStatus = msg
	m.lastError = msg
	m.logger.Warn(what, "error", err, "state", string(m.state))
	m.notifier.NotifyStatus(msg)
}

// reportStateLocked passes a changed state to the OnStateChange hook.
// Every transition is followed by a status, so this is the one place
// transitions are observed.
func (m *Manager) reportStateLocked() {
	if m.state == m.reported {
		return
	}
	m.reported = m.state
	if m.onState != nil {
		m.onState(m.state)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) NotifyStatus(string)  {}
func (noopNotifier) NotifyMessage(string) {}
