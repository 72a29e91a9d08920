package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	chatModel         = openai.ChatModelGPT4_1Mini
	describeMaxTokens = 150
)

// OpenAIProvider streams descriptions from the OpenAI chat completions API.
type OpenAIProvider struct {
	usageTracker
	client *openai.Client
}

func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIProvider{
		client: &client,
	}
}

func (p *OpenAIProvider) Name() string {
	return chatModel
}

func (p *OpenAIProvider) Describe(ctx context.Context, imageData []byte, prompt string) (string, error) {
	resized, err := ResizeImage(imageData, MaxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(prompt),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:     chatModel,
		Messages:  messages,
		MaxTokens: openai.Int(describeMaxTokens),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	})
	defer stream.Close()

	var b strings.Builder
	var inputTokens, outputTokens int64
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			b.WriteString(chunk.Choices[0].Delta.Content)
		}
		if chunk.Usage.TotalTokens > 0 {
			inputTokens = chunk.Usage.PromptTokens
			outputTokens = chunk.Usage.CompletionTokens
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	p.track(int(inputTokens), int(outputTokens))

	return finish(&b)
}
