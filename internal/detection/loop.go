// Package detection runs the periodic frame sampling that feeds the
// encounter machine.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/encounter"
	"github.com/kozaktomas/companion/internal/metrics"
	"github.com/kozaktomas/companion/internal/speech"
)

const (
	activatedPhrase   = "Camera activated. I will help you recognize people."
	deactivatedPhrase = "Camera deactivated."
	noFacePhrase      = "No face detected. Please point the camera at someone."
)

// ErrActivationCanceled is returned by Activate when Deactivate ran while
// the detector was still loading.
var ErrActivationCanceled = errors.New("activation canceled")

// IsSessionFatal reports whether err ends the detection session rather than
// just the current operation.
func IsSessionFatal(err error) bool {
	return errors.Is(err, camera.ErrCameraUnavailable) ||
		errors.Is(err, camera.ErrModelUnavailable) ||
		errors.Is(err, speech.ErrSpeechUnavailable)
}

// Speaker is the part of the notifier the loop uses.
type Speaker interface {
	Speak(text string) bool
}

// Handler receives the outcome of each pass. *encounter.Machine implements it.
type Handler interface {
	HandleFace(ctx context.Context, frame camera.Frame, face camera.Face) (*encounter.DetectionResult, error)
	ClearDetection()
	Reset()
	State() encounter.State
}

// Config wires a Loop.
type Config struct {
	Source  camera.Source
	Handler Handler
	Speaker Speaker
	// Connect loads the face detector on every activation. A loop without
	// Connect uses Detector as is.
	Connect  func(ctx context.Context) (camera.FaceDetector, error)
	Detector camera.FaceDetector
	// Checks run before activation, e.g. camera and speech availability.
	Checks   []func(ctx context.Context) error
	Interval time.Duration
	Logger   *zap.Logger
}

// Status is a snapshot of the loop for callers.
type Status struct {
	Active      bool   `json:"active"`
	Activating  bool   `json:"activating"`
	Busy        bool   `json:"busy"`
	NoFaceCount int    `json:"no_face_count"`
	State       string `json:"state"`
}

// Loop samples a frame every interval. A tick that fires while the previous
// pass is still running is skipped, never queued.
type Loop struct {
	cfg    Config
	logger *zap.Logger

	busy atomic.Bool

	mu         sync.Mutex
	active     bool
	activating context.CancelFunc // set while checks and Connect run
	attempt    uint64
	session    uint64
	noFace     int
	cancel     context.CancelFunc
	done       chan struct{}

	passes sync.WaitGroup
}

func NewLoop(cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DetectionInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{cfg: cfg, logger: cfg.Logger}
}

// Activate runs the availability checks, loads the detector and starts the
// ticker. Calling it on an active or activating loop is a no-op. The checks
// and the detector load run without the loop lock, so Status stays
// responsive and Deactivate can abort them.
func (l *Loop) Activate(ctx context.Context) error {
	l.mu.Lock()
	if l.active || l.activating != nil {
		l.mu.Unlock()
		return nil
	}
	prepCtx, abort := context.WithCancel(ctx)
	defer abort()
	l.attempt++
	attempt := l.attempt
	l.activating = abort
	l.mu.Unlock()

	detector, err := l.prepare(prepCtx)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.activating == nil || l.attempt != attempt {
		return ErrActivationCanceled
	}
	l.activating = nil
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.session++
	l.active = true
	l.noFace = 0
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(runCtx, l.session, detector, l.done)

	l.logger.Info("detection activated", zap.Duration("interval", l.cfg.Interval))
	l.cfg.Speaker.Speak(activatedPhrase)
	return nil
}

// prepare runs the availability checks and loads the detector.
func (l *Loop) prepare(ctx context.Context) (camera.FaceDetector, error) {
	for _, check := range l.cfg.Checks {
		if err := check(ctx); err != nil {
			return nil, fmt.Errorf("activating detection: %w", err)
		}
	}

	detector := l.cfg.Detector
	if l.cfg.Connect != nil {
		d, err := l.cfg.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("activating detection: %w", err)
		}
		detector = d
	}
	if detector == nil {
		return nil, fmt.Errorf("activating detection: %w", camera.ErrModelUnavailable)
	}
	return detector, nil
}

// Deactivate aborts a pending activation, or stops the ticker, waits for the
// in-flight pass to return and resets the encounter machine. It is safe to
// call repeatedly.
func (l *Loop) Deactivate() {
	l.mu.Lock()
	if l.activating != nil {
		l.activating()
		l.activating = nil
		l.mu.Unlock()
		l.logger.Info("detection activation aborted")
		return
	}
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.session++
	l.noFace = 0
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	l.passes.Wait()
	l.cfg.Handler.Reset()

	l.logger.Info("detection deactivated")
	l.cfg.Speaker.Speak(deactivatedPhrase)
}

// Close deactivates and waits for any pass still running.
func (l *Loop) Close() {
	l.Deactivate()
	l.passes.Wait()
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Active:      l.active,
		Activating:  l.activating != nil,
		Busy:        l.busy.Load(),
		NoFaceCount: l.noFace,
		State:       l.cfg.Handler.State().String(),
	}
}

func (l *Loop) run(ctx context.Context, session uint64, detector camera.FaceDetector, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, session, detector)
		}
	}
}

func (l *Loop) tick(ctx context.Context, session uint64, detector camera.FaceDetector) {
	if !l.busy.CompareAndSwap(false, true) {
		metrics.DetectionTicksSkippedTotal.Inc()
		l.logger.Debug("previous detection pass still running, skipping tick")
		return
	}

	l.passes.Add(1)
	go func() {
		defer l.passes.Done()
		defer l.busy.Store(false)
		l.pass(ctx, session, detector)
	}()
}

// pass runs one detection cycle.
func (l *Loop) pass(ctx context.Context, session uint64, detector camera.FaceDetector) {
	start := time.Now()
	defer func() {
		metrics.DetectionPassDuration.Observe(time.Since(start).Seconds())
	}()

	frame, err := l.cfg.Source.Frame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DetectionPassesTotal.WithLabelValues("error").Inc()
			l.logger.Warn("failed to grab frame", zap.Error(err))
		}
		return
	}
	if !frame.Usable() {
		metrics.DetectionPassesTotal.WithLabelValues("not_ready").Inc()
		return
	}

	faces, err := detector.Detect(ctx, frame.Data)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DetectionPassesTotal.WithLabelValues("error").Inc()
			l.logger.Warn("face detection failed", zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	if len(faces) == 0 {
		l.noFaceSeen(session)
		return
	}

	l.mu.Lock()
	if session != l.session {
		l.mu.Unlock()
		return
	}
	l.noFace = 0
	l.mu.Unlock()

	res, err := l.cfg.Handler.HandleFace(ctx, frame, faces[0])
	switch {
	case err == nil:
		if res.IsKnown {
			metrics.DetectionPassesTotal.WithLabelValues("known").Inc()
		} else {
			metrics.DetectionPassesTotal.WithLabelValues("unknown").Inc()
		}
	case errors.Is(err, encounter.ErrPassSuperseded) || ctx.Err() != nil:
	default:
		metrics.DetectionPassesTotal.WithLabelValues("error").Inc()
		l.logger.Warn("failed to handle face", zap.Error(err))
	}
}

// noFaceSeen advances the empty-pass streak and speaks once when it reaches
// the threshold.
func (l *Loop) noFaceSeen(session uint64) {
	l.mu.Lock()
	if session != l.session {
		l.mu.Unlock()
		return
	}
	l.noFace++
	count := l.noFace
	l.mu.Unlock()

	metrics.DetectionPassesTotal.WithLabelValues("no_face").Inc()
	l.cfg.Handler.ClearDetection()

	if count == constants.NoFaceThreshold {
		l.logger.Info("no face detected", zap.Int("passes", count))
		l.cfg.Speaker.Speak(noFacePhrase)
	}
}
