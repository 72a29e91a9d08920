// Package speech turns text into audio for the patient. The Notifier decides
// whether a phrase is spoken; a Synthesizer does the actual speaking.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrSpeechUnavailable means no speech synthesizer can be used. It ends a
// detection session.
var ErrSpeechUnavailable = errors.New("speech synthesis unavailable")

// Voice carries the delivery parameters. Rate, Pitch and Volume are relative,
// 1.0 being the synthesizer default.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
	Hint   string // preferred voice gender or name
}

// DefaultVoice is a slightly slowed, softer female voice.
func DefaultVoice() Voice {
	return Voice{Rate: 0.9, Pitch: 1.0, Volume: 0.8, Hint: "female"}
}

// Synthesizer speaks text and blocks until playback finishes or ctx is canceled.
type Synthesizer interface {
	Speak(ctx context.Context, text string, voice Voice) error
}

// availabilityChecker is implemented by synthesizers that depend on something
// outside the process.
type availabilityChecker interface {
	Available() error
}

// espeak-ng defaults the Voice factors are applied to
const (
	espeakWordsPerMinute = 175
	espeakPitch          = 50
	espeakAmplitude      = 100
)

// ExecSynthesizer runs an espeak-ng compatible binary per utterance.
type ExecSynthesizer struct {
	binary    string
	voiceName string
}

func NewExecSynthesizer(binary, voiceName string) *ExecSynthesizer {
	if binary == "" {
		binary = "espeak-ng"
	}
	return &ExecSynthesizer{binary: binary, voiceName: voiceName}
}

// Available reports ErrSpeechUnavailable when the binary is not on PATH.
func (s *ExecSynthesizer) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrSpeechUnavailable, s.binary, err)
	}
	return nil
}

func (s *ExecSynthesizer) Speak(ctx context.Context, text string, voice Voice) error {
	if err := s.Available(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, s.binary, s.args(text, voice)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", s.binary, err, out)
	}
	return nil
}

func (s *ExecSynthesizer) args(text string, voice Voice) []string {
	var args []string
	if s.voiceName != "" {
		args = append(args, "-v", s.voiceName)
	}
	args = append(args,
		"-s", strconv.Itoa(scale(espeakWordsPerMinute, voice.Rate)),
		"-p", strconv.Itoa(scale(espeakPitch, voice.Pitch)),
		"-a", strconv.Itoa(scale(espeakAmplitude, voice.Volume)),
		"--", text,
	)
	return args
}

func scale(base int, factor float64) int {
	if factor <= 0 {
		return base
	}
	return int(float64(base)*factor + 0.5)
}

// LogSynthesizer is a headless synthesizer: it logs the text and waits about
// as long as speaking it would take.
type LogSynthesizer struct {
	logger  *zap.Logger
	perRune time.Duration
}

func NewLogSynthesizer(logger *zap.Logger, perRune time.Duration) *LogSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSynthesizer{logger: logger, perRune: perRune}
}

func (s *LogSynthesizer) Speak(ctx context.Context, text string, voice Voice) error {
	s.logger.Info("speak", zap.String("text", text), zap.String("voice", voice.Hint))

	d := time.Duration(utf8.RuneCountInString(text)) * s.perRune
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
