// Package ai wraps the multimodal models that describe what a person in a
// camera snapshot is doing. Every provider streams its answer and returns the
// concatenated text.
package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MaxImageSize is the longest edge, in pixels, of images sent to a provider.
const MaxImageSize = 800

// ErrEmptyResponse is returned when a provider streamed no text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Provider describes an image given a prompt.
type Provider interface {
	Name() string
	Describe(ctx context.Context, imageData []byte, prompt string) (string, error)
	GetUsage() Usage
}

// Usage tracks token usage across requests.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
}

// usageTracker is embedded by providers; Describe may run concurrently.
type usageTracker struct {
	mu    sync.Mutex
	usage Usage
}

func (u *usageTracker) track(inputTokens, outputTokens int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.Requests++
	u.usage.InputTokens += inputTokens
	u.usage.OutputTokens += outputTokens
}

// GetUsage returns a snapshot of the accumulated usage.
func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

// finish trims the streamed text and rejects empty answers.
func finish(b *strings.Builder) (string, error) {
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
