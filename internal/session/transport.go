package session

// QoSAtLeastOnce is the subscription quality of service for every topic.
const QoSAtLeastOnce byte = 1

// Token tracks an asynchronous transport operation.
// mqtt.Token from paho satisfies it.
type Token interface {
	// Done is closed when the operation completes.
	Done() <-chan struct{}

	// Error returns the failure, or nil, once Done is closed.
	Error() error
}

// Transport is one broker connection handle.
//
// A Transport is used for exactly one session. After Close it must not be
// reused and must stop delivering callbacks.
type Transport interface {
	// Connect starts the connection handshake.
	Connect() Token

	// Subscribe requests all topics in a single batched call.
	Subscribe(topics []string, qos byte) Token

	// Disconnect closes the network connection gracefully, best effort.
	Disconnect()

	// Close releases the handle. Safe to call more than once.
	Close()
}

// Handlers are the callbacks a Transport invokes. They may be called from
// any goroutine.
type Handlers struct {
	// OnConnected fires after the handshake completes. reconnect is true
	// when the transport re-established a previously working connection.
	OnConnected func(reconnect bool)

	// OnConnectionLost fires when an established connection drops.
	OnConnectionLost func(cause error)

	// OnMessage fires for every inbound publish on a subscribed topic.
	// The payload may be reused after return.
	OnMessage func(topic string, payload []byte)
}

// DialFunc creates a Transport for cfg wired to h. It must not block on
// network I/O; the handshake starts with Transport.Connect.
type DialFunc func(cfg ConnectionConfig, h Handlers) (Transport, error)
