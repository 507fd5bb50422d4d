package voice

import "time"

// Kind is the classification outcome for an inbound payload.
type Kind string

const (
	// KindPlainText is spoken verbatim.
	KindPlainText Kind = "plain_text"

	// KindVoiceCommand carries the txt field of a tts_dynamic envelope.
	KindVoiceCommand Kind = "voice_command"

	// KindIgnored is a tts_dynamic envelope whose txt is blank.
	KindIgnored Kind = "ignored"
)

// InboundMessage is a single message delivered by the transport.
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Classified is the immutable result of classifying a payload.
type Classified struct {
	Kind Kind

	// Text is what gets spoken: the command text for KindVoiceCommand,
	// the decoded payload for KindPlainText, empty for KindIgnored.
	Text string

	// Original is the raw payload as received.
	Original []byte
}

// Speakable reports whether the message should reach the speech sink.
func (c Classified) Speakable() bool {
	return c.Kind != KindIgnored
}
