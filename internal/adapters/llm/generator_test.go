package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automag/internal/domain"
	openai "automag/internal/infra/openai"
)

func TestGenerateConcatenatesStreamInOrder(t *testing.T) {
	client := &fakeStream{fragments: []string{`{"content":`, `{"title":{"english":"Hi"}`, `}}`}}
	archive := &memArchive{}
	g := NewGenerator(client, "m", time.Second, zerolog.Nop(), WithArchive(archive), WithEcho(true))

	material, err := g.Generate(context.Background(), "Hi", "Body text", "https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, "Hi", material.TitleEnglish())

	raw, err := archive.Get("https://a.example/1")
	require.NoError(t, err)
	assert.Equal(t, `{"content":{"title":{"english":"Hi"}}}`, string(raw))

	req := client.captured
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, int64(generationMaxTokens), req.MaxTokens)
	assert.Equal(t, openai.ResponseFormatTypeJSONObject, req.ResponseFormat)
	assert.True(t, strings.Contains(req.Messages[1].Content, "Body text"))
	assert.True(t, strings.Contains(req.Messages[1].Content, "https://a.example/1"))
}

func TestGenerateRecoversObjectAfterPrefix(t *testing.T) {
	for _, fragments := range [][]string{
		{"answer: ", `{"a":1}`, " done"},
		{"Here is the JSON: ", `{"a":`, `1}`},
	} {
		g := NewGenerator(&fakeStream{fragments: fragments}, "m", time.Second, zerolog.Nop())

		material, err := g.Generate(context.Background(), "t", "c", "u")
		require.NoError(t, err, strings.Join(fragments, ""))
		assert.Equal(t, int64(1), material.Get("a").Int())
	}
}

func TestGenerateWithoutTimeoutHasNoDeadline(t *testing.T) {
	client := &fakeStream{fragments: []string{`{"a":1}`}}
	_, err := NewGenerator(client, "m", 0, zerolog.Nop()).Generate(context.Background(), "t", "c", "u")
	require.NoError(t, err)
	assert.False(t, client.hadDeadline)

	_, err = NewGenerator(client, "m", time.Minute, zerolog.Nop()).Generate(context.Background(), "t", "c", "u")
	require.NoError(t, err)
	assert.True(t, client.hadDeadline)
}

func TestGenerateTransportErrorIsUpstream(t *testing.T) {
	client := &fakeStream{fragments: []string{`{"a"`}, err: errors.New("connection reset")}
	g := NewGenerator(client, "m", time.Second, zerolog.Nop())

	_, err := g.Generate(context.Background(), "t", "c", "u")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamAI))
	assert.False(t, errors.Is(err, domain.ErrParse))
}

func TestGenerateParseErrorCarriesRaw(t *testing.T) {
	client := &fakeStream{fragments: []string{"I cannot ", "help with that"}}
	archive := &memArchive{}
	g := NewGenerator(client, "m", time.Second, zerolog.Nop(), WithArchive(archive))

	_, err := g.Generate(context.Background(), "t", "c", "u")
	var parseErr *domain.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "I cannot help with that", parseErr.Raw)
	assert.Contains(t, archive.data, "u")
}

func TestGenerateUnexpectedFailureIsGeneration(t *testing.T) {
	g := NewGenerator(&fakeStream{panicMsg: "nil map"}, "m", time.Second, zerolog.Nop())
	_, err := g.Generate(context.Background(), "t", "c", "u")
	assert.True(t, errors.Is(err, domain.ErrGeneration))

	g = NewGenerator(&fakeStream{}, "", time.Second, zerolog.Nop())
	_, err = g.Generate(context.Background(), "t", "c", "u")
	assert.True(t, errors.Is(err, domain.ErrGeneration))
}

func TestDescribe(t *testing.T) {
	client := &fakeChat{answer: "  精选美联社报道，逐段解析词汇与语法。  "}
	d := NewDescriber(client, "m", time.Second)
	material := domain.NewMaterial([]byte(`{"source":"AP News","metadata":{"topics":["economy"]}}`))

	desc, err := d.Describe(context.Background(), material)
	require.NoError(t, err)
	assert.Equal(t, "精选美联社报道，逐段解析词汇与语法。", desc)

	req := client.captured[0]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, int64(500), req.MaxTokens)
	assert.Contains(t, req.Messages[1].Content, "AP News")
	assert.Contains(t, req.Messages[1].Content, "economy")
	assert.Contains(t, req.Messages[1].Content, "无总结")
}

func TestDescribeError(t *testing.T) {
	d := NewDescriber(&fakeChat{err: errors.New("timeout")}, "m", time.Second)
	_, err := d.Describe(context.Background(), domain.NewMaterial([]byte(`{}`)))
	assert.True(t, errors.Is(err, domain.ErrUpstreamAI))
}
