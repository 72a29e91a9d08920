package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultLlamaCppURL   = "http://localhost:8080"
	defaultLlamaCppModel = "llava"
)

// LlamaCppProvider streams descriptions from a llama.cpp server's
// OpenAI-compatible endpoint as server-sent events.
type LlamaCppProvider struct {
	usageTracker
	parsedURL *url.URL
	model     string
	client    *http.Client
}

// NewLlamaCppProvider creates a new llama.cpp provider with the given config.
func NewLlamaCppProvider(baseURL, model string) (*LlamaCppProvider, error) {
	if baseURL == "" {
		baseURL = defaultLlamaCppURL
	}
	if model == "" {
		model = defaultLlamaCppModel
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid llama.cpp URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid llama.cpp URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid llama.cpp URL: missing host")
	}
	return &LlamaCppProvider{
		parsedURL: parsed,
		model:     model,
		client:    &http.Client{},
	}, nil
}

// Name returns the provider name.
func (p *LlamaCppProvider) Name() string {
	return p.model
}

type llamaCppRequest struct {
	Model       string            `json:"model"`
	Messages    []llamaCppMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Stream      bool              `json:"stream"`
}

type llamaCppMessage struct {
	Role    string                `json:"role"`
	Content []llamaCppContentPart `json:"content"`
}

type llamaCppContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *llamaCppImageURL `json:"image_url,omitempty"`
}

type llamaCppImageURL struct {
	URL string `json:"url"`
}

// llamaCppChunk is the payload of one "data:" event.
type llamaCppChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// Describe sends the prompt and image and concatenates the streamed deltas.
func (p *LlamaCppProvider) Describe(ctx context.Context, imageData []byte, prompt string) (string, error) {
	resized, err := ResizeImage(imageData, MaxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	jsonBody, err := json.Marshal(llamaCppRequest{
		Model: p.model,
		Messages: []llamaCppMessage{
			{
				Role: "user",
				Content: []llamaCppContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &llamaCppImageURL{URL: imageURL}},
				},
			},
		},
		MaxTokens:   describeMaxTokens,
		Temperature: 0.4,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqURL := p.parsedURL.JoinPath("/v1/chat/completions")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var b strings.Builder
	if err := p.readEvents(resp.Body, &b); err != nil {
		return "", err
	}
	return finish(&b)
}

// readEvents concatenates the content deltas of an SSE stream until [DONE].
func (p *LlamaCppProvider) readEvents(r io.Reader, b *strings.Builder) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk llamaCppChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		for _, c := range chunk.Choices {
			b.WriteString(c.Delta.Content)
		}
		if chunk.Usage != nil {
			p.track(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}
