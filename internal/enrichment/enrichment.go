// Package enrichment turns a snapshot into a short spoken description of
// what the person in front of the camera is doing.
package enrichment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/ai"
	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/metrics"
)

// Subject tells the enricher who it is looking at.
type Subject struct {
	Known bool
	Name  string
}

// Describer is what the encounter machine needs from an enricher.
type Describer interface {
	Describe(ctx context.Context, image []byte, subject Subject) string
}

// Enricher wraps an ai.Provider with a bounded wait and a fixed fallback.
// A nil provider is valid and always yields the fallback.
type Enricher struct {
	provider ai.Provider
	prompts  config.PromptsConfig
	timeout  time.Duration
	logger   *zap.Logger
}

func New(provider ai.Provider, prompts config.PromptsConfig, timeout time.Duration, logger *zap.Logger) *Enricher {
	if timeout <= 0 {
		timeout = constants.EnrichmentTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		provider: provider,
		prompts:  prompts,
		timeout:  timeout,
		logger:   logger,
	}
}

// Provider returns the configured provider name, or "" when there is none.
func (e *Enricher) Provider() string {
	if e.provider == nil {
		return ""
	}
	return e.provider.Name()
}

// Describe never fails: errors, timeouts and empty answers all return
// constants.EnrichmentFallback.
func (e *Enricher) Describe(ctx context.Context, image []byte, subject Subject) string {
	if e.provider == nil {
		return constants.EnrichmentFallback
	}
	name := e.provider.Name()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.provider.Describe(ctx, image, e.prompt(subject))
	metrics.EnrichmentRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.EnrichmentRequestsTotal.WithLabelValues(name, "ok").Inc()
		return text
	case errors.Is(err, ai.ErrEmptyResponse):
		metrics.EnrichmentRequestsTotal.WithLabelValues(name, "empty").Inc()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.EnrichmentRequestsTotal.WithLabelValues(name, "timeout").Inc()
		e.logger.Warn("enrichment timed out", zap.String("provider", name), zap.Duration("timeout", e.timeout))
	default:
		metrics.EnrichmentRequestsTotal.WithLabelValues(name, "error").Inc()
		e.logger.Warn("enrichment failed", zap.String("provider", name), zap.Error(err))
	}
	return constants.EnrichmentFallback
}

func (e *Enricher) prompt(subject Subject) string {
	if subject.Known {
		return e.prompts.KnownPrompt(subject.Name)
	}
	return e.prompts.Unknown
}
