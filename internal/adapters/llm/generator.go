package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
	openai "automag/internal/infra/openai"
)

// Generator превращает статью в учебный материал через потоковый ответ модели.
type Generator struct {
	client  streamClient
	model   string
	timeout time.Duration
	archive domain.RawArchive
	echo    bool
	log     zerolog.Logger
}

// GeneratorOption настраивает Generator.
type GeneratorOption func(*Generator)

// WithArchive сохраняет каждый сырой ответ модели в архив.
func WithArchive(archive domain.RawArchive) GeneratorOption {
	return func(g *Generator) { g.archive = archive }
}

// WithEcho пишет фрагменты потока в debug-лог по мере поступления.
func WithEcho(enabled bool) GeneratorOption {
	return func(g *Generator) { g.echo = enabled }
}

// NewGenerator создаёт генератор материалов. При timeout <= 0 поток ничем не ограничен,
// кроме контекста вызывающего.
func NewGenerator(client streamClient, model string, timeout time.Duration, logger zerolog.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{client: client, model: model, timeout: timeout, log: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate запрашивает материал и разбирает ответ. Ошибки транспорта оборачивают ErrUpstreamAI,
// неразобранный ответ возвращается как *domain.ParseError вместе с сырым текстом.
func (g *Generator) Generate(ctx context.Context, title, content, url string) (material domain.Material, err error) {
	defer func() {
		if r := recover(); r != nil {
			material = domain.Material{}
			err = fmt.Errorf("generator: %w: %v", domain.ErrGeneration, r)
		}
	}()
	if g.model == "" {
		return domain.Material{}, fmt.Errorf("generator: %w: model is not configured", domain.ErrGeneration)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:          g.model,
		Temperature:    0.3,
		MaxTokens:      generationMaxTokens,
		ResponseFormat: openai.ResponseFormatTypeJSONObject,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: generationSystemPrompt},
			{Role: openai.RoleUser, Content: generationUserPrompt(title, content, url)},
		},
	}

	var raw strings.Builder
	consumers := []func(string){func(fragment string) { raw.WriteString(fragment) }}
	if g.echo {
		consumers = append(consumers, func(fragment string) {
			g.log.Debug().Str("url", url).Str("fragment", fragment).Msg("generator: фрагмент ответа")
		})
	}

	start := time.Now()
	if err := g.client.StreamChatCompletion(ctx, req, fanOut(consumers...)); err != nil {
		return domain.Material{}, fmt.Errorf("generator: %w: %w", domain.ErrUpstreamAI, err)
	}
	output := raw.String()
	g.log.Info().Str("url", url).Int("chars", len([]rune(output))).Dur("took", time.Since(start)).Msg("generator: поток получен")
	g.archiveRaw(url, output)

	material, step, err := ParseMaterial(output)
	if err != nil {
		g.log.Error().Err(err).Str("url", url).Str("raw", output).Msg("generator: не удалось разобрать ответ модели")
		return domain.Material{}, err
	}
	metrics.ObserveParseStep(step)
	if step != StepStrict {
		g.log.Warn().Str("url", url).Str("step", step).Msg("generator: ответ разобран не с первой попытки")
	}
	return material, nil
}

func (g *Generator) archiveRaw(url, raw string) {
	if g.archive == nil {
		return
	}
	if err := g.archive.Put(url, []byte(raw)); err != nil {
		g.log.Warn().Err(err).Str("url", url).Msg("generator: не удалось сохранить сырой ответ")
	}
}

// fanOut раздаёт каждый фрагмент всем потребителям по очереди.
func fanOut(consumers ...func(string)) func(string) {
	return func(fragment string) {
		for _, consume := range consumers {
			consume(fragment)
		}
	}
}
