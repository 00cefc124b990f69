package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > messageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("вторая часть должна содержать блоки b и c")
	}
}

func TestSplitKeepsShortHeadWithBody(t *testing.T) {
	parts := splitRunes("ab\n"+strings.Repeat("x", 20), 10)
	if len(parts) != 3 {
		t.Fatalf("ожидали 3 части, получили %d: %q", len(parts), parts)
	}
	if parts[0] != "ab\n"+strings.Repeat("x", 7) {
		t.Fatalf("короткая первая строка не должна уходить отдельно: %q", parts[0])
	}
}

func TestSplitWithoutNewlines(t *testing.T) {
	parts := splitRunes(strings.Repeat("字", 25), 10)
	if len(parts) != 3 {
		t.Fatalf("ожидали 3 части, получили %d", len(parts))
	}
	if len([]rune(parts[2])) != 5 {
		t.Fatalf("последняя часть должна содержать остаток, получили %q", parts[2])
	}
}

func TestSplitMessageShortAndEmpty(t *testing.T) {
	if parts := SplitMessage("hello world"); len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("короткий текст должен остаться целым: %v", parts)
	}
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("для пустого текста не ожидали частей, получили %d", len(parts))
	}
}
