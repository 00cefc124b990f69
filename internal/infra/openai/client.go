package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"automag/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1/"

// Client выполняет Chat Completions запросы через официальный SDK.
type Client struct {
	sdk             sdk.Client
	timeout         time.Duration
	disableThinking bool
}

// NewClient создаёт клиента OpenAI-совместимого API.
// timeout действует только на обычные запросы, стриминг ограничивает лишь контекст.
// disableThinking добавляет chat_template_kwargs.thinking=false, который понимают vLLM/SGLang.
func NewClient(apiKey, baseURL string, timeout time.Duration, disableThinking bool) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client := sdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(1),
	)
	return &Client{sdk: client, timeout: timeout, disableThinking: disableThinking}
}

// ChatCompletionRequest описывает тело запроса.
type ChatCompletionRequest struct {
	Model          string
	Messages       []ChatMessage
	Temperature    float64
	MaxTokens      int64
	ResponseFormat string
}

// ChatMessage представляет сообщение в диалоге.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
	// RoleAssistant ответ модели.
	RoleAssistant = "assistant"
)

const (
	// ResponseFormatTypeJSONObject просит вернуть объект JSON.
	ResponseFormatTypeJSONObject = "json_object"
)

// ChatCompletionResponse описывает ответ модели.
type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice
	Usage   ChatCompletionUsage
}

// ChatCompletionChoice содержит сообщение модели.
type ChatCompletionChoice struct {
	Message ChatMessage
}

// ChatCompletionUsage описывает статистику использования токенов.
type ChatCompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CreateChatCompletion вызывает /chat/completions без стриминга.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	params, err := c.params(req)
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	start := time.Now()
	opts := append(c.requestOptions(), option.WithRequestTimeout(c.timeout))
	resp, err := c.sdk.Chat.Completions.New(ctx, params, opts...)
	metrics.ObserveNetworkRequest("openai", "chat_completions", req.Model, start, err)
	if err != nil {
		return ChatCompletionResponse{}, describeError(err)
	}

	out := ChatCompletionResponse{
		Usage: ChatCompletionUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, ChatCompletionChoice{
			Message: ChatMessage{Role: RoleAssistant, Content: choice.Message.Content},
		})
	}
	metrics.ObserveLLMGeneration(req.Model, time.Since(start), out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens)
	return out, nil
}

// StreamChatCompletion вызывает /chat/completions в режиме стриминга и отдаёт каждый фрагмент текста в handle по порядку.
func (c *Client) StreamChatCompletion(ctx context.Context, req ChatCompletionRequest, handle func(fragment string)) error {
	params, err := c.params(req)
	if err != nil {
		return err
	}
	start := time.Now()
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params, c.requestOptions()...)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if fragment := chunk.Choices[0].Delta.Content; fragment != "" {
			handle(fragment)
		}
	}
	err = stream.Err()
	metrics.ObserveNetworkRequest("openai", "chat_completions_stream", req.Model, start, err)
	if err != nil {
		return describeError(err)
	}
	metrics.ObserveLLMGeneration(req.Model, time.Since(start), 0, 0, 0)
	return nil
}

func (c *Client) params(req ChatCompletionRequest) (sdk.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: model is empty")
	}
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, sdk.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, sdk.ChatCompletionMessageParamOfAssistant(msg.Content))
		default:
			messages = append(messages, sdk.UserMessage(msg.Content))
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(req.Model),
		Messages:    messages,
		Temperature: sdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}
	if req.ResponseFormat == ResponseFormatTypeJSONObject {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func (c *Client) requestOptions() []option.RequestOption {
	if !c.disableThinking {
		return nil
	}
	return []option.RequestOption{
		option.WithJSONSet("chat_template_kwargs", map[string]any{"thinking": false}),
	}
}

func describeError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: do request: %w", err)
}
