package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет текст на части не длиннее лимита Telegram.
func SplitMessage(text string) []string {
	return splitRunes(text, messageLimit)
}

// splitRunes старается резать по переводу строки, чтобы абзацы не рвались посередине.
// Перевод строки ищется только во второй половине окна, иначе короткая первая строка
// ушла бы отдельным сообщением.
func splitRunes(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if limit <= 0 || len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	appendChunk := func(chunk []rune) {
		if s := strings.Trim(string(chunk), "\n"); s != "" {
			parts = append(parts, s)
		}
	}

	start := 0
	for len(runes)-start > limit {
		cut := start + limit
		for i := cut; i > start+limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		appendChunk(runes[start:cut])
		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	appendChunk(runes[start:])

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
