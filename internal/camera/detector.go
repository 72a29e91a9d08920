package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultEmbeddingURL = "http://localhost:8000"

// EmbeddingDetector detects faces and computes their embeddings using the embedding server.
type EmbeddingDetector struct {
	baseURL string
	client  *http.Client
}

// NewEmbeddingDetector creates a detector for one embedding server.
func NewEmbeddingDetector(baseURL string) *EmbeddingDetector {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &EmbeddingDetector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server the detector talks to.
func (d *EmbeddingDetector) BaseURL() string {
	return d.baseURL
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// Detect posts the image to /embed/face and returns the faces in server order.
func (d *EmbeddingDetector) Detect(ctx context.Context, imageData []byte) ([]Face, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/embed/face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return faceResp.Faces, nil
}

// Ping checks the server's health endpoint.
func (d *EmbeddingDetector) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// ConnectOptions controls how ConnectDetector walks the alternate sources.
type ConnectOptions struct {
	Attempts     int           // rounds over the source list
	RetryDelay   time.Duration // pause between two sources
	ProbeTimeout time.Duration // per-source health timeout
}

// ConnectDetector returns a detector for the first embedding server that
// answers its health check. Sources are tried in order for opts.Attempts
// rounds with opts.RetryDelay between them. Exhaustion yields ErrModelUnavailable.
func ConnectDetector(ctx context.Context, urls []string, opts ConnectOptions, logger *zap.Logger) (*EmbeddingDetector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no embedding servers configured", ErrModelUnavailable)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}

	var lastErr error
	tried := 0
	for round := range opts.Attempts {
		for _, url := range urls {
			if tried > 0 {
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, ctx.Err())
				case <-time.After(opts.RetryDelay):
				}
			}
			tried++

			d := NewEmbeddingDetector(url)
			probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
			err := d.Ping(probeCtx)
			cancel()
			if err == nil {
				logger.Info("face embedding server ready", zap.String("url", d.BaseURL()))
				return d, nil
			}

			lastErr = err
			logger.Warn("face embedding server unavailable",
				zap.String("url", url), zap.Int("round", round+1), zap.Error(err))
		}
	}

	return nil, fmt.Errorf("%w: tried %d sources: %w", ErrModelUnavailable, tried, lastErr)
}

// DetectMIMEType detects the MIME type from image magic bytes.
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
