package voice

import (
	"fmt"
)

// CommandPrefix is prepended to command text in message notifications when
// the notifier has no dedicated command channel.
const CommandPrefix = "voice command: "

// IgnoredStatus is the status notification sent for a blank command.
const IgnoredStatus = "ignored empty voice command"

// Speaker queues text for speech. Implementations must not block the caller
// for the duration of synthesis and must silently drop text while not ready.
type Speaker interface {
	Speak(text string)
}

// Notifier receives human-readable events. Implementations must never block
// or panic back into the caller.
type Notifier interface {
	NotifyStatus(message string)
	NotifyMessage(message string)
}

// CommandNotifier is optionally implemented by a Notifier that reports voice
// commands on their own channel instead of a prefixed message.
type CommandNotifier interface {
	NotifyCommand(text string)
}

// Logger is the logging surface the dispatcher needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Dispatcher routes classified payloads to a Speaker and a Notifier.
//
// Thread Safety:
//   - Dispatch may be called concurrently, but callers normally drive it
//     from one goroutine so speech order follows arrival order.
type Dispatcher struct {
	speaker  Speaker
	notifier Notifier
	logger   Logger
}

// NewDispatcher creates a Dispatcher. Nil arguments are replaced with no-ops.
func NewDispatcher(speaker Speaker, notifier Notifier, logger Logger) *Dispatcher {
	if speaker == nil {
		speaker = noopSpeaker{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		speaker:  speaker,
		notifier: notifier,
		logger:   logger,
	}
}

// Dispatch classifies one inbound message and routes it:
//
//   - KindVoiceCommand: speak the command text and notify it as a command
//   - KindIgnored: speak nothing and send the "ignored" status
//   - KindPlainText: speak the payload and notify it as a message
//
// A panic from a sink is recovered and logged so one bad message never
// stops delivery of the next.
func (d *Dispatcher) Dispatch(msg InboundMessage) (result Classified) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("dispatch panicked",
				"topic", msg.Topic,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	result = Classify(msg.Payload)

	d.logger.Debug("message classified",
		"topic", msg.Topic,
		"kind", string(result.Kind),
		"bytes", len(msg.Payload),
	)

	if result.Speakable() {
		d.speaker.Speak(result.Text)
	}

	switch result.Kind {
	case KindIgnored:
		d.notifier.NotifyStatus(IgnoredStatus)

	case KindVoiceCommand:
		if cn, ok := d.notifier.(CommandNotifier); ok {
			cn.NotifyCommand(result.Text)
		} else {
			d.notifier.NotifyMessage(CommandPrefix + result.Text)
		}

	default:
		d.notifier.NotifyMessage(result.Text)
	}

	return result
}

type noopSpeaker struct{}

func (noopSpeaker) Speak(string) {}

type noopNotifier struct{}

func (noopNotifier) NotifyStatus(string)  {}
func (noopNotifier) NotifyMessage(string) {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
