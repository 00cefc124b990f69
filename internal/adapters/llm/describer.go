package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"automag/internal/domain"
	openai "automag/internal/infra/openai"
)

// Describer пишет рекламное описание материала.
type Describer struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewDescriber создаёт генератор описаний.
func NewDescriber(client chatClient, model string, timeout time.Duration) *Describer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Describer{client: client, model: model, timeout: timeout}
}

// Describe возвращает описание без пробелов по краям.
func (d *Describer) Describe(ctx context.Context, material domain.Material) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0.7,
		MaxTokens:   descriptionMaxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: descriptionSystemPrompt},
			{Role: openai.RoleUser, Content: descriptionUserPrompt(material)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describer: %w: %w", domain.ErrUpstreamAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("describer: пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
