// Package notify fans voice and session events out to observers.
//
// A Notifier implements voice.Notifier and voice.CommandNotifier. Each
// notification becomes an Event with a uuid and a timestamp, is queued
// without blocking the caller, and is delivered by one worker goroutine to
// every registered Sink (log, journal, InfluxDB, WebSocket hub).
//
// When the queue is full the event is dropped and counted; producers are
// never slowed down by a slow sink. A nil *Notifier is a valid no-op.
package notify
