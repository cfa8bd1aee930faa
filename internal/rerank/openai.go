package rerank

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIScorer struct {
	client *openai.Client
	model  string
}

func NewOpenAIScorer(apiKey, baseURL, model string) *OpenAIScorer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIScorer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *OpenAIScorer) Name() string { return "openai" }

func (s *OpenAIScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scoringPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\n\nDocument: %s", query, truncate(passage, 1000))},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return 0, fmt.Errorf("openai rerank: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("openai rerank: empty response")
	}
	return parseScore(resp.Choices[0].Message.Content)
}

func parseScore(content string) (float64, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil {
		return 0, fmt.Errorf("parse rerank score %q: %w", content, err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("rerank score %f out of range", score)
	}
	return score, nil
}
