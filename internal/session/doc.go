// Package session owns the lifecycle of one MQTT broker connection.
//
// A Manager connects to the broker described by a ConnectionConfig,
// subscribes every configured topic in one batched request at QoS 1,
// forwards inbound messages to a voice.Dispatcher, and recovers from
// failures with a single-slot delayed reconnect.
//
// # Lifecycle
//
//	idle -> connecting -> subscribing -> listening
//	            |              |             |
//	            v              v             v
//	          failed      (retry on     disconnected
//	            |          reconnect)        |
//	            +------> reconnect in 10s <--+
//
// Stop moves the manager to stopped from any state. Start may be called
// again afterwards and behaves like a fresh start.
//
// # Stale callbacks
//
// Every connect attempt gets a generation number. Transport callbacks carry
// the generation they were created for and are dropped once it is no longer
// current, so a late connect-complete or connection-lost from a torn-down
// session never mutates the live one.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Transport teardown runs
// outside the manager lock so a transport that calls back while
// disconnecting cannot deadlock the manager.
package session
