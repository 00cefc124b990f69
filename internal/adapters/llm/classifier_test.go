package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestIsSafeFailsClosed(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeChat
		want   bool
	}{
		{name: "exact", client: &fakeChat{answer: "safe"}, want: true},
		{name: "capitalized", client: &fakeChat{answer: "Safe"}, want: true},
		{name: "padded", client: &fakeChat{answer: " safe \n"}, want: true},
		{name: "unsafe", client: &fakeChat{answer: "unsafe"}, want: false},
		{name: "sentence", client: &fakeChat{answer: "safe."}, want: false},
		{name: "empty", client: &fakeChat{answer: ""}, want: false},
		{name: "no choices", client: &fakeChat{noChoice: true}, want: false},
		{name: "api error", client: &fakeChat{err: errors.New("502 bad gateway")}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClassifier(tc.client, "m", time.Second, zerolog.Nop())
			if got := c.IsSafe(context.Background(), "title", "body"); got != tc.want {
				t.Fatalf("IsSafe = %v, ожидали %v", got, tc.want)
			}
		})
	}
}

func TestIsSafeRequestShape(t *testing.T) {
	client := &fakeChat{answer: "safe"}
	c := NewClassifier(client, "m", time.Second, zerolog.Nop())
	content := strings.Repeat("я", 2500)
	c.IsSafe(context.Background(), "Headline", content)

	if len(client.captured) != 1 {
		t.Fatalf("ожидали один запрос")
	}
	req := client.captured[0]
	if req.Temperature != 0 || req.MaxTokens != 5 {
		t.Fatalf("неожиданные параметры: temperature=%v max_tokens=%d", req.Temperature, req.MaxTokens)
	}
	if req.ResponseFormat != "" {
		t.Fatalf("классификатор не должен просить JSON")
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "Headline") {
		t.Fatalf("заголовок должен попасть в запрос")
	}
	if strings.Count(user, "я") != 2000 {
		t.Fatalf("в запрос должно попасть ровно 2000 символов текста, попало %d", strings.Count(user, "я"))
	}
}
