package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.DecodeConfig
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/companion/internal/constants"
)

// HTTPSource pulls snapshots from an IP camera snapshot endpoint.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a snapshot source for the given URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Probe checks the camera can be reached before detection starts.
func (s *HTTPSource) Probe(ctx context.Context) error {
	if _, err := s.fetch(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	return nil
}

// Frame fetches one snapshot. A response that does not decode as an image
// yields a frame with HaveNothing readiness rather than an error, the way a
// camera that is still warming up reports no data.
func (s *HTTPSource) Frame(ctx context.Context) (Frame, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return Frame{}, err
	}
	return decodeFrame(data), nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// decodeFrame reads image dimensions without decoding pixels.
func decodeFrame(data []byte) Frame {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{Data: data, Ready: HaveNothing}
	}
	return Frame{
		Data:   data,
		Width:  cfg.Width,
		Height: cfg.Height,
		Ready:  HaveEnoughData,
	}
}
