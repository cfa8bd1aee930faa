package rerank

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicScorer struct {
	client anthropic.Client
	model  string
}

func NewAnthropicScorer(apiKey, model string) *AnthropicScorer {
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &AnthropicScorer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (s *AnthropicScorer) Name() string { return "anthropic" }

func (s *AnthropicScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 8,
		System: []anthropic.TextBlockParam{
			{Text: scoringPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("Query: %s\n\nDocument: %s", query, truncate(passage, 1000)))),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic rerank: %w", err)
	}

	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return parseScore(content)
}
