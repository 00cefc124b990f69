package llm

import (
	"context"

	openai "automag/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type streamClient interface {
	StreamChatCompletion(ctx context.Context, req openai.ChatCompletionRequest, handle func(fragment string)) error
}

const (
	moderationContentLimit = 2000
	moderationMaxTokens    = 5
	descriptionMaxTokens   = 500
	// Ответ не ограничиваем: длинная статья должна быть разобрана целиком.
	generationMaxTokens = 3533000
)
