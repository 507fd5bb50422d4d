package speech

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/mqtt-voice/internal/infrastructure/config"
)

// Engine names accepted in configuration.
const (
	EngineLog   = "log"
	EnginePolly = "polly"
)

// New builds a Queue for the configured engine. The queue still needs Start.
func New(cfg config.SpeechConfig, logger Logger, notifier StatusNotifier) (*Queue, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	synth, err := newSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewQueue(synth, QueueOptions{
		Mode:      mode,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		Notifier:  notifier,
	}), nil
}

func newSynthesizer(cfg config.SpeechConfig, logger Logger) (Synthesizer, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineLog:
		return NewLogSynthesizer(logger), nil
	case EnginePolly:
		sink, err := sinkFromConfig(cfg.Polly)
		if err != nil {
			return nil, err
		}
		return NewPollySynthesizer(PollyConfig{
			Region:       cfg.Polly.Region,
			VoiceID:      cfg.Polly.VoiceID,
			Engine:       cfg.Polly.Engine,
			LanguageCode: cfg.Polly.LanguageCode,
			Timeout:      time.Duration(cfg.Polly.Timeout) * time.Second,
		}, sink), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// sinkFromConfig picks audio outputs: a player, a directory, both, or none.
func sinkFromConfig(cfg config.PollyConfig) (AudioSink, error) {
	var sinks MultiSink

	if cfg.OutputDir != "" {
		sinks = append(sinks, DirSink{Dir: cfg.OutputDir})
	}
	if cfg.PlayerCommand != "" {
		player, err := ParseCommand(cfg.PlayerCommand)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, player)
	}

	switch len(sinks) {
	case 0:
		return DiscardSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
