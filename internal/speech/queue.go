package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode selects how new text interacts with queued text.
type Mode string

const (
	// ModeEnqueue appends to the queue.
	ModeEnqueue Mode = "enqueue"

	// ModeReplace flushes the queue and interrupts the current utterance.
	ModeReplace Mode = "replace"
)

// defaultQueueSize bounds pending utterances in enqueue mode.
const defaultQueueSize = 64

// Status texts emitted on readiness changes.
const (
	StatusReady       = "speech engine ready"
	StatusUnavailable = "speech engine unavailable"
)

// ParseMode converts a config string to a Mode. Empty selects ModeEnqueue.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeEnqueue:
		return ModeEnqueue, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Logger defines the logging interface for the speech package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// StatusNotifier receives readiness status events.
type StatusNotifier interface {
	NotifyStatus(message string)
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Mode      Mode
	QueueSize int
	Logger    Logger
	Notifier  StatusNotifier
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Ready   bool  `json:"ready"`
	Pending int   `json:"pending"`
	Spoken  int64 `json:"spoken"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Queue serialises utterances onto one Synthesizer.
//
// Thread Safety:
//   - Speak, Ready, AwaitReady and Stats are safe for concurrent use.
//   - Speak never blocks on synthesis.
type Queue struct {
	synth    Synthesizer
	mode     Mode
	size     int
	logger   Logger
	notifier StatusNotifier

	mu            sync.Mutex
	pending       []Utterance
	ready         bool
	initErr       error
	cancelCurrent context.CancelFunc
	stats         Stats
	started       bool

	initDone chan struct{}
	wake     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewQueue creates a Queue. Call Start to initialise the synthesizer and
// begin speaking.
func NewQueue(synth Synthesizer, opts QueueOptions) *Queue {
	if opts.Mode == "" {
		opts.Mode = ModeEnqueue
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Queue{
		synth:    synth,
		mode:     opts.Mode,
		size:     opts.QueueSize,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		initDone: make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Start initialises the synthesizer in the background and runs the worker
// until ctx is cancelled or Close is called. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(ctx)
}

// Close stops the worker, interrupting any utterance in progress.
func (q *Queue) Close() {
	q.mu.Lock()
	cancel := q.cancel
	q.pending = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Speak queues text. It is a no-op for blank text and while the
// synthesizer is not ready.
func (q *Queue) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	q.mu.Lock()
	if !q.ready {
		q.stats.Dropped++
		q.mu.Unlock()
		q.logger.Debug("speech not ready, dropping utterance")
		return
	}

	u := Utterance{
		ID:       uuid.NewString(),
		Text:     text,
		QueuedAt: time.Now(),
	}

	switch q.mode {
	case ModeReplace:
		q.stats.Dropped += int64(len(q.pending))
		q.pending = append(q.pending[:0], u)
		if q.cancelCurrent != nil {
			q.cancelCurrent()
		}
	default:
		if len(q.pending) >= q.size {
			q.stats.Dropped++
			q.mu.Unlock()
			q.logger.Warn("speech queue full, dropping utterance", "queue_size", q.size)
			return
		}
		q.pending = append(q.pending, u)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Ready reports whether the synthesizer initialised successfully.
func (q *Queue) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// AwaitReady blocks until initialisation finishes or ctx is done.
func (q *Queue) AwaitReady(ctx context.Context) error {
	select {
	case <-q.initDone:
	case <-ctx.Done():
		return fmt.Errorf("awaiting speech engine: %w", ctx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.initErr != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, q.initErr)
	}
	return nil
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Ready = q.ready
	s.Pending = len(q.pending)
	return s
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	if !q.initialise(ctx) {
		return
	}

	for {
		u, sayCtx, cancel, ok := q.next(ctx)
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		q.say(sayCtx, u)
		cancel()
	}
}

func (q *Queue) initialise(ctx context.Context) bool {
	err := q.synth.Init(ctx)

	q.mu.Lock()
	q.initErr = err
	q.ready = err == nil
	q.mu.Unlock()
	close(q.initDone)

	if err != nil {
		q.logger.Warn("speech engine init failed", "error", err)
		q.notify(StatusUnavailable + ": " + err.Error())
		return false
	}
	q.logger.Info("speech engine ready", "mode", string(q.mode))
	q.notify(StatusReady)
	return true
}

// next pops the head of the queue and installs its cancel func in the same
// critical section, so a replace can always interrupt what was popped.
func (q *Queue) next(ctx context.Context) (Utterance, context.Context, context.CancelFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Utterance{}, nil, nil, false
	}
	u := q.pending[0]
	q.pending = q.pending[1:]

	sayCtx, cancel := context.WithCancel(ctx)
	q.cancelCurrent = cancel
	return u, sayCtx, cancel, true
}

func (q *Queue) say(ctx context.Context, u Utterance) {
	err := q.synth.Say(ctx, u)

	q.mu.Lock()
	q.cancelCurrent = nil
	switch {
	case err == nil:
		q.stats.Spoken++
	case errors.Is(err, context.Canceled):
		// Interrupted by replace or shutdown.
	default:
		q.stats.Failed++
	}
	q.mu.Unlock()

	switch {
	case err == nil:
		q.logger.Debug("utterance spoken", "utterance_id", u.ID, "latency", time.Since(u.QueuedAt))
	case errors.Is(err, context.Canceled):
		q.logger.Debug("utterance interrupted", "utterance_id", u.ID)
	default:
		q.logger.Warn("utterance failed", "utterance_id", u.ID, "error", err)
	}
}

func (q *Queue) notify(msg string) {
	if q.notifier != nil {
		q.notifier.NotifyStatus(msg)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
