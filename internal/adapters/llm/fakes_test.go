package llm

import (
	"context"
	"errors"

	openai "automag/internal/infra/openai"
)

type fakeChat struct {
	answer   string
	noChoice bool
	err      error
	captured []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.captured = append(f.captured, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.noChoice {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: openai.RoleAssistant, Content: f.answer}}},
	}, nil
}

type fakeStream struct {
	fragments   []string
	err         error
	panicMsg    string
	captured    openai.ChatCompletionRequest
	hadDeadline bool
}

func (f *fakeStream) StreamChatCompletion(ctx context.Context, req openai.ChatCompletionRequest, handle func(string)) error {
	f.captured = req
	_, f.hadDeadline = ctx.Deadline()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	for _, fragment := range f.fragments {
		handle(fragment)
	}
	return f.err
}

type memArchive struct {
	data map[string][]byte
}

func (a *memArchive) Put(url string, raw []byte) error {
	if a.data == nil {
		a.data = map[string][]byte{}
	}
	a.data[url] = raw
	return nil
}

func (a *memArchive) Get(url string) ([]byte, error) {
	raw, ok := a.data[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return raw, nil
}
