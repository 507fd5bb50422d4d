package notify

// InfoLogger is the logging surface LogSink needs.
type InfoLogger interface {
	Info(msg string, args ...any)
}

// LogSink writes every event to a structured log.
type LogSink struct {
	logger InfoLogger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger InfoLogger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event.
func (s *LogSink) Publish(e Event) {
	s.logger.Info("event",
		"event_id", e.ID,
		"kind", string(e.Kind),
		"text", e.Text,
	)
}
