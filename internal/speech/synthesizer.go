package speech

import (
	"context"
	"time"
)

// Utterance is one piece of text queued for speech.
type Utterance struct {
	ID       string
	Text     string
	QueuedAt time.Time
}

// Synthesizer turns text into sound.
type Synthesizer interface {
	// Init prepares the engine. The queue becomes ready when it returns nil.
	Init(ctx context.Context) error

	// Say speaks one utterance and returns when playback ends. It must
	// return promptly once ctx is cancelled.
	Say(ctx context.Context, u Utterance) error
}

// LogSynthesizer "speaks" by logging the text.
type LogSynthesizer struct {
	logger Logger
}

// NewLogSynthesizer creates a LogSynthesizer. logger may be nil.
func NewLogSynthesizer(logger Logger) *LogSynthesizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogSynthesizer{logger: logger}
}

// Init always succeeds.
func (s *LogSynthesizer) Init(context.Context) error {
	return nil
}

// Say logs the utterance.
func (s *LogSynthesizer) Say(ctx context.Context, u Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("speak", "utterance_id", u.ID, "text", u.Text)
	return nil
}
