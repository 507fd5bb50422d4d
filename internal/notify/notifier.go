package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// defaultBufferSize bounds events waiting for delivery.
const defaultBufferSize = 256

// Sink receives delivered events. Publish is called from the notifier's
// worker goroutine, one event at a time.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Logger defines the logging interface for the notifier.
type Logger interface {
	Warn(msg string, args ...any)
}

// Options configures a Notifier.
type Options struct {
	BufferSize int
	Logger     Logger
	Sinks      []Sink
}

// Notifier queues events and delivers them to sinks asynchronously.
type Notifier struct {
	logger Logger
	queue  chan Event

	mu    sync.RWMutex
	sinks []Sink

	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Notifier and starts its delivery goroutine.
func New(opts Options) *Notifier {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	n := &Notifier{
		logger: logger,
		queue:  make(chan Event, size),
		sinks:  append([]Sink(nil), opts.Sinks...),
		done:   make(chan struct{}),
	}

	n.wg.Add(1)
	go n.run()

	return n
}

// AddSink registers another sink. Safe to call while events flow.
func (n *Notifier) AddSink(s Sink) {
	if n == nil || s == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// NotifyStatus publishes a status event.
func (n *Notifier) NotifyStatus(message string) {
	n.Publish(NewEvent(KindStatus, message))
}

// NotifyMessage publishes a message event.
func (n *Notifier) NotifyMessage(message string) {
	n.Publish(NewEvent(KindMessage, message))
}

// NotifyCommand publishes a voice command event.
func (n *Notifier) NotifyCommand(text string) {
	n.Publish(NewEvent(KindCommand, text))
}

// Publish queues e for delivery. It never blocks: a full queue drops the
// event. Safe to call on a nil receiver and after Close (no-op).
func (n *Notifier) Publish(e Event) {
	if n == nil {
		return
	}
	select {
	case <-n.done:
		return
	default:
	}

	select {
	case n.queue <- e:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	if n == nil {
		return 0
	}
	return n.dropped.Load()
}

// Close delivers queued events and stops the worker. Idempotent.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
	})
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for {
		select {
		case e := <-n.queue:
			n.deliver(e)
		case <-n.done:
			n.drain()
			return
		}
	}
}

// drain delivers whatever is already queued at shutdown.
func (n *Notifier) drain() {
	for {
		select {
		case e := <-n.queue:
			n.deliver(e)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(e Event) {
	n.mu.RLock()
	sinks := n.sinks
	n.mu.RUnlock()

	for _, s := range sinks {
		n.publishTo(s, e)
	}
}

func (n *Notifier) publishTo(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("notify sink panicked",
				"sink", fmt.Sprintf("%T", s),
				"event_id", e.ID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.Publish(e)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}
