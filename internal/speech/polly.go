package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// Polly defaults.
const (
	defaultPollyRegion  = "us-east-1"
	defaultPollyVoice   = "Zhiyu"
	defaultPollyEngine  = "neural"
	defaultPollyTimeout = 15 * time.Second
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Amazon Polly synthesizer.
type PollyConfig struct {
	Region       string
	VoiceID      string
	Engine       string
	LanguageCode string
	Timeout      time.Duration
}

func (c PollyConfig) withDefaults() PollyConfig {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = defaultPollyRegion
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = defaultPollyVoice
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = defaultPollyEngine
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultPollyTimeout
	}
	return c
}

// PollySynthesizer speaks through Amazon Polly. Credentials come from the
// standard AWS chain (env, shared config, instance role).
type PollySynthesizer struct {
	cfg  PollyConfig
	sink AudioSink

	mu     sync.Mutex
	client synthClient
}

// NewPollySynthesizer creates a synthesizer that plays audio through sink.
// A nil sink discards audio.
func NewPollySynthesizer(cfg PollyConfig, sink AudioSink) *PollySynthesizer {
	return newPollyWithClient(cfg, nil, sink)
}

func newPollyWithClient(cfg PollyConfig, client synthClient, sink AudioSink) *PollySynthesizer {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &PollySynthesizer{
		cfg:    cfg.withDefaults(),
		sink:   sink,
		client: client,
	}
}

// Init loads AWS configuration for the configured region.
func (p *PollySynthesizer) Init(ctx context.Context) error {
	_, err := p.resolveClient(ctx)
	return err
}

// Say synthesises the utterance as MP3 and plays it.
func (p *PollySynthesizer) Say(ctx context.Context, u Utterance) error {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	input := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &u.Text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.cfg.VoiceID),
	}
	if p.cfg.LanguageCode != "" {
		input.LanguageCode = pollytypes.LanguageCode(p.cfg.LanguageCode)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(reqCtx, input)
	if err != nil {
		return classifyPollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return fmt.Errorf("%w: empty audio stream", ErrSynthesisUnavailable)
	}
	defer output.AudioStream.Close()

	// Playback may outlast the request timeout; it is bounded by ctx only.
	if err := p.sink.Play(ctx, u, output.AudioStream); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}
	return nil
}

func (p *PollySynthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

// classifyPollyError maps SDK failures onto the package sentinels.
func classifyPollyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSynthesisTimeout, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException",
			"EngineNotSupportedException", "LanguageNotSupportedException":
			return fmt.Errorf("%w: %w", ErrSynthesisRejected, err)
		default:
			return fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
}
