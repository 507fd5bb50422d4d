package mqtt

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-voice/internal/session"
)

// subackFailure is the SUBACK return code for a refused filter.
const subackFailure = 0x80

// newPahoClient is swapped out in tests.
var newPahoClient = pahomqtt.NewClient

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transport is one paho client bound to one session.
//
// paho callbacks are forwarded to the session.Handlers supplied at Dial
// until Close is called; after that they are dropped.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Connect and Close are serialised: a Connect either fails with
//     ErrTransportClosed or is abandoned by the Close that follows it.
type Transport struct {
	client   pahomqtt.Client
	broker   string
	handlers session.Handlers
	logger   Logger

	// connectedOnce distinguishes the first OnConnect from paho's
	// automatic reconnects.
	connectedOnce atomic.Bool
	closed        atomic.Bool

	mu sync.Mutex
	// connectIssued is set by Connect and cleared by Disconnect.
	connectIssued bool
}

// NewDialer returns a session.DialFunc that creates paho transports with
// the given tuning. logger may be nil.
func NewDialer(opts Options, logger Logger) session.DialFunc {
	return func(cfg session.ConnectionConfig, h session.Handlers) (session.Transport, error) {
		t, err := Dial(cfg, h, opts, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Dial builds a paho client for cfg and wires its callbacks to h.
// No network I/O happens until Connect.
func Dial(cfg session.ConnectionConfig, h session.Handlers, opts Options, logger Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	t := &Transport{
		broker:   cfg.BrokerURL(),
		handlers: h,
		logger:   logger,
	}

	popts := buildClientOptions(cfg, opts)

	popts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.handleConnect()
	})

	popts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleConnectionLost(err)
	})

	popts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		t.logger.Debug("MQTT transport reconnecting", "broker", t.Broker())
	})

	popts.SetDefaultPublishHandler(t.wrapHandler())

	t.client = newPahoClient(popts)
	return t, nil
}

// Connect starts the connection handshake. The returned token completes
// when the broker answers or the connect timeout expires.
func (t *Transport) Connect() session.Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return failedToken(ErrTransportClosed)
	}
	t.connectIssued = true
	t.logger.Debug("MQTT transport connecting", "broker", t.Broker())
	return t.client.Connect()
}

// Subscribe requests every filter in one SUBSCRIBE packet.
//
// The returned token fails if paho reports an error or the broker refuses
// any filter in its SUBACK.
func (t *Transport) Subscribe(topics []string, qos byte) session.Token {
	if t.closed.Load() {
		return failedToken(ErrTransportClosed)
	}
	if qos > maxQoS {
		return failedToken(ErrInvalidQoS)
	}
	if err := ValidateFilters(topics); err != nil {
		return failedToken(err)
	}

	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		filters[topic] = qos
	}

	return subscribeToken{Token: t.client.SubscribeMultiple(filters, t.wrapHandler())}
}

// Disconnect closes the network connection, waiting briefly for in-flight
// work. Calling it on a client that never connected is harmless.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.connectIssued = false
	t.mu.Unlock()

	t.client.Disconnect(defaultDisconnectQuiesce)
}

// Close stops callback delivery and abandons any connection started since
// the last Disconnect, so no paho client outlives its session. The
// Transport must not be reused.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed.Swap(true) {
		t.mu.Unlock()
		return
	}
	abandon := t.connectIssued
	t.connectIssued = false
	t.mu.Unlock()

	if abandon {
		t.logger.Debug("MQTT transport abandoning connection", "broker", t.Broker())
		t.client.Disconnect(defaultDisconnectQuiesce)
	}
}

// Broker returns the broker URL this transport dials.
func (t *Transport) Broker() string {
	return t.broker
}

func (t *Transport) handleConnect() {
	if t.closed.Load() {
		return
	}
	reconnect := t.connectedOnce.Swap(true)
	if t.handlers.OnConnected != nil {
		t.handlers.OnConnected(reconnect)
	}
}

func (t *Transport) handleConnectionLost(err error) {
	if t.closed.Load() {
		return
	}
	if t.handlers.OnConnectionLost != nil {
		t.handlers.OnConnectionLost(err)
	}
}

// wrapHandler adapts session.Handlers.OnMessage to paho with panic recovery.
func (t *Transport) wrapHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if t.closed.Load() || t.handlers.OnMessage == nil {
			return
		}
		t.handlers.OnMessage(msg.Topic(), msg.Payload())
	}
}

// subscribeToken surfaces SUBACK refusals as an error.
type subscribeToken struct {
	pahomqtt.Token
}

func (s subscribeToken) Error() error {
	if err := s.Token.Error(); err != nil {
		return err
	}
	st, ok := s.Token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}

	var rejected []string
	for topic, code := range st.Result() {
		if code == subackFailure {
			rejected = append(rejected, topic)
		}
	}
	if len(rejected) == 0 {
		return nil
	}
	slices.Sort(rejected)
	return fmt.Errorf("%w: %v", ErrSubscribeRejected, rejected)
}

// doneToken is an already completed token.
type doneToken struct {
	err error
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func failedToken(err error) doneToken {
	return doneToken{err: err}
}

func (d doneToken) Wait() bool                     { return true }
func (d doneToken) WaitTimeout(time.Duration) bool { return true }
func (d doneToken) Done() <-chan struct{}          { return closedChan }
func (d doneToken) Error() error                   { return d.err }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
