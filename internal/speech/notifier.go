package speech

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/metrics"
)

// Options configures a Notifier.
type Options struct {
	Voice    Voice
	Cooldown time.Duration          // identical text inside this window is dropped
	OwnerID  string                 // key under which the enabled flag is persisted
	Settings database.SettingsStore // optional
	Logger   *zap.Logger
}

// Notifier speaks one utterance at a time. A new utterance cancels the one in
// flight; nothing is ever queued.
type Notifier struct {
	synth    Synthesizer
	voice    Voice
	cooldown time.Duration
	ownerID  string
	settings database.SettingsStore
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	enabled   bool
	closed    bool
	lastText  string
	lastStart time.Time
	gen       uint64
	cancel    context.CancelFunc // nil when idle
	wg        sync.WaitGroup
}

// NewNotifier restores the enabled flag from opts.Settings. Audio is enabled
// when nothing was stored or the store can't be read.
func NewNotifier(ctx context.Context, synth Synthesizer, opts Options) *Notifier {
	if opts.Cooldown <= 0 {
		opts.Cooldown = constants.SpeechCooldown
	}
	if opts.Voice == (Voice{}) {
		opts.Voice = DefaultVoice()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	n := &Notifier{
		synth:    synth,
		voice:    opts.Voice,
		cooldown: opts.Cooldown,
		ownerID:  opts.OwnerID,
		settings: opts.Settings,
		logger:   opts.Logger,
		now:      time.Now,
		enabled:  true,
	}

	if n.settings != nil {
		v, ok, err := n.settings.GetSetting(ctx, n.ownerID, database.SettingAudioEnabled)
		switch {
		case err != nil:
			n.logger.Warn("failed to load audio setting, keeping audio enabled", zap.Error(err))
		case ok:
			if b, err := strconv.ParseBool(v); err == nil {
				n.enabled = b
			}
		}
	}
	return n
}

// Available reports whether the synthesizer can speak at all.
func (n *Notifier) Available() error {
	if c, ok := n.synth.(availabilityChecker); ok {
		return c.Available()
	}
	return nil
}

// Speak starts an utterance and reports whether it did. Blank text, disabled
// audio and a repeat of the last text inside the cooldown are no-ops.
func (n *Notifier) Speak(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.SpeechRequestsTotal.WithLabelValues("empty").Inc()
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || !n.enabled {
		metrics.SpeechRequestsTotal.WithLabelValues("disabled").Inc()
		return false
	}
	now := n.now()
	if text == n.lastText && now.Sub(n.lastStart) < n.cooldown {
		metrics.SpeechRequestsTotal.WithLabelValues("deduplicated").Inc()
		n.logger.Debug("dropping repeated utterance", zap.String("text", text))
		return false
	}
	if n.cancel != nil {
		n.cancel()
		metrics.SpeechRequestsTotal.WithLabelValues("preempted").Inc()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.gen++
	n.cancel = cancel
	n.lastText = text
	n.lastStart = now

	n.wg.Add(1)
	go n.play(ctx, cancel, n.gen, text)

	metrics.SpeechRequestsTotal.WithLabelValues("started").Inc()
	return true
}

func (n *Notifier) play(ctx context.Context, cancel context.CancelFunc, gen uint64, text string) {
	defer n.wg.Done()
	defer cancel()

	err := n.synth.Speak(ctx, text, n.voice)

	n.mu.Lock()
	if n.gen == gen {
		n.cancel = nil
	}
	n.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		metrics.SpeechRequestsTotal.WithLabelValues("failed").Inc()
		n.logger.Error("speech failed", zap.String("text", text), zap.Error(err))
	}
}

// IsSpeaking reports whether an utterance is in flight.
func (n *Notifier) IsSpeaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancel != nil
}

func (n *Notifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// SetEnabled switches audio on or off and persists the choice. Disabling
// silences the current utterance at once. The in-memory flag changes even
// when persisting fails.
func (n *Notifier) SetEnabled(ctx context.Context, enabled bool) error {
	n.mu.Lock()
	n.enabled = enabled
	if !enabled {
		n.stopLocked()
	}
	n.mu.Unlock()

	if n.settings == nil {
		return nil
	}
	return n.settings.SetSetting(ctx, n.ownerID, database.SettingAudioEnabled, strconv.FormatBool(enabled))
}

// Stop cancels the utterance in flight, if any.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Notifier) stopLocked() {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// Close stops speaking, rejects further utterances and waits for playback
// goroutines to return.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.stopLocked()
	n.mu.Unlock()

	n.wg.Wait()
}
