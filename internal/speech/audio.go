package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// playerWaitDelay is how long a cancelled player gets before it is killed.
const playerWaitDelay = 2 * time.Second

// AudioSink consumes synthesised audio for one utterance.
type AudioSink interface {
	Play(ctx context.Context, u Utterance, audio io.Reader) error
}

// DiscardSink drains and drops audio.
type DiscardSink struct{}

// Play drains audio.
func (DiscardSink) Play(_ context.Context, _ Utterance, audio io.Reader) error {
	_, err := io.Copy(io.Discard, audio)
	return err
}

// DirSink writes each utterance to <Dir>/<utterance id>.mp3.
type DirSink struct {
	Dir string
}

// Play writes the audio file. A partially written file is removed.
func (s DirSink) Play(_ context.Context, u Utterance, audio io.Reader) error {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}

	path := filepath.Join(s.Dir, u.ID+".mp3")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec // path built from a generated uuid
	if err != nil {
		return fmt.Errorf("creating audio file: %w", err)
	}

	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing audio file: %w", err)
	}
	return nil
}

// CommandSink pipes audio to a player process on stdin.
type CommandSink struct {
	Binary string
	Args   []string
}

// ParseCommand splits a player command line such as "mpg123 -q -".
func ParseCommand(cmdline string) (CommandSink, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return CommandSink{}, errors.New("speech: empty player command")
	}
	return CommandSink{Binary: fields[0], Args: fields[1:]}, nil
}

// Play runs the player and waits for it to exit. Cancelling ctx stops
// playback.
func (s CommandSink) Play(ctx context.Context, _ Utterance, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args...) //nolint:gosec // binary comes from operator config
	cmd.Stdin = audio
	cmd.WaitDelay = playerWaitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.Binary, err, msg)
		}
		return fmt.Errorf("%s: %w", s.Binary, err)
	}
	return nil
}

// MultiSink plays the same audio through every sink in order. Audio is
// buffered in memory; Polly MP3 output for one utterance is small.
type MultiSink []AudioSink

// Play feeds each sink a copy of the audio and returns the first error.
func (m MultiSink) Play(ctx context.Context, u Utterance, audio io.Reader) error {
	data, err := io.ReadAll(audio)
	if err != nil {
		return fmt.Errorf("buffering audio: %w", err)
	}
	for _, sink := range m {
		if err := sink.Play(ctx, u, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}
