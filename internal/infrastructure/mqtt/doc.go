// Package mqtt provides the paho-backed broker transport for mqtt-voice.
//
// A Transport wraps one paho client for one session and implements
// session.Transport:
//   - Connect with clean session, keepalive and a bounded connect timeout
//   - one batched SubscribeMultiple for every topic, SUBACK refusals
//     surfaced as ErrSubscribeRejected
//   - paho callbacks forwarded to session.Handlers until Close
//   - panic recovery around the message handler
//
// # Reconnection
//
// paho's AutoReconnect re-establishes a dropped connection and fires
// OnConnect again with reconnect=true. The initial connect is never
// retried inside paho (ConnectRetry=false); the session manager owns that
// retry with its own fixed-delay timer.
//
// # Security Considerations
//
//   - ssl:// brokers use TLS 1.2 or newer with SNI set to the broker host
//   - Credentials are sent only when a username is configured
//
// # Usage
//
//	dial := mqtt.NewDialer(mqtt.OptionsFromConfig(cfg.Broker), logger)
//	manager, err := session.New(session.Options{Dial: dial, ...})
package mqtt
