package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("тело запроса не JSON: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateChatCompletion(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		captured = body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":" Safe "},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	})
	client := NewClient("key", srv.URL, time.Second*5, true)
	resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:       "m",
		Temperature: 0,
		MaxTokens:   5,
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "user"},
		},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != " Safe " {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Fatalf("ожидали usage.total_tokens=4, получили %d", resp.Usage.TotalTokens)
	}
	kwargs, ok := captured["chat_template_kwargs"].(map[string]any)
	if !ok || kwargs["thinking"] != false {
		t.Fatalf("ожидали chat_template_kwargs.thinking=false, получили %v", captured["chat_template_kwargs"])
	}
	if captured["temperature"] != float64(0) {
		t.Fatalf("temperature должна передаваться даже при нуле: %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(5) {
		t.Fatalf("неожиданный max_tokens %v", captured["max_tokens"])
	}
}

func TestStreamChatCompletionKeepsOrder(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		captured = body
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{`{\"a\"`, `:1`, `}`} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"},\"finish_reason\":null}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	client := NewClient("key", srv.URL, time.Second*5, false)
	var sb strings.Builder
	err := client.StreamChatCompletion(context.Background(), ChatCompletionRequest{
		Model:          "m",
		Messages:       []ChatMessage{{Role: RoleUser, Content: "go"}},
		ResponseFormat: ResponseFormatTypeJSONObject,
	}, func(fragment string) { sb.WriteString(fragment) })
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sb.String() != `{"a":1}` {
		t.Fatalf("фрагменты склеены неверно: %q", sb.String())
	}
	if captured["stream"] != true {
		t.Fatalf("ожидали stream=true")
	}
	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("ожидали response_format json_object, получили %v", captured["response_format"])
	}
	if _, ok := captured["chat_template_kwargs"]; ok {
		t.Fatalf("chat_template_kwargs не должен отправляться, если thinking не отключён")
	}
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	})
	client := NewClient("key", srv.URL, time.Second*5, false)
	_, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m", Messages: []ChatMessage{{Role: RoleUser, Content: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("ожидали ошибку со статусом 400, получили %v", err)
	}
}

func TestStreamChatCompletionIgnoresRequestTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{`{\"a\"`, `:1}`} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"},\"finish_reason\":null}]}\n\n", part)
			w.(http.Flusher).Flush()
			time.Sleep(150 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	client := NewClient("key", srv.URL, 50*time.Millisecond, false)
	var sb strings.Builder
	err := client.StreamChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: RoleUser, Content: "go"}},
	}, func(fragment string) { sb.WriteString(fragment) })
	if err != nil {
		t.Fatalf("таймаут запроса не должен обрывать поток: %v", err)
	}
	if sb.String() != `{"a":1}` {
		t.Fatalf("поток получен не целиком: %q", sb.String())
	}
}

func TestCreateChatCompletionRespectsRequestTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ map[string]any) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	})
	client := NewClient("key", srv.URL, 50*time.Millisecond, false)
	_, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: RoleUser, Content: "go"}},
	})
	if err == nil {
		t.Fatalf("ожидали ошибку по таймауту обычного запроса")
	}
}
