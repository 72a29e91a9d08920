package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider streams descriptions from the Gemini API.
type GeminiProvider struct {
	usageTracker
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  geminiModel,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return p.model
}

func (p *GeminiProvider) Describe(ctx context.Context, imageData []byte, prompt string) (string, error) {
	resized, err := ResizeImage(imageData, MaxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	var b strings.Builder
	var inputTokens, outputTokens int32
	for chunk, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, nil) {
		if err != nil {
			return "", fmt.Errorf("gemini API error: %w", err)
		}
		b.WriteString(chunk.Text())
		if chunk.UsageMetadata != nil {
			inputTokens = chunk.UsageMetadata.PromptTokenCount
			outputTokens = chunk.UsageMetadata.CandidatesTokenCount
		}
	}
	p.track(int(inputTokens), int(outputTokens))

	return finish(&b)
}
