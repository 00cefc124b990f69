package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"automag/internal/infra/metrics"
	openai "automag/internal/infra/openai"
)

// Classifier проверяет статью на допустимость публикации.
type Classifier struct {
	client  chatClient
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewClassifier создаёт классификатор.
func NewClassifier(client chatClient, model string, timeout time.Duration, logger zerolog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Classifier{client: client, model: model, timeout: timeout, log: logger}
}

// IsSafe возвращает true только при ответе модели ровно «safe». Ошибки и пустой ответ дают false.
func (c *Classifier) IsSafe(ctx context.Context, title, content string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   moderationMaxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: moderationSystemPrompt},
			{Role: openai.RoleUser, Content: moderationUserPrompt(title, content)},
		},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("title", title).Msg("classifier: ошибка модели, статья считается небезопасной")
		metrics.ObserveModeration(false)
		return false
	}
	if len(resp.Choices) == 0 {
		c.log.Warn().Str("title", title).Msg("classifier: пустой ответ, статья считается небезопасной")
		metrics.ObserveModeration(false)
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	safe := answer == "safe"
	metrics.ObserveModeration(safe)
	if !safe {
		c.log.Info().Str("title", title).Str("answer", answer).Msg("classifier: статья не прошла проверку")
		return false
	}
	c.log.Debug().Str("title", title).Msg("classifier: статья прошла проверку")
	return true
}
