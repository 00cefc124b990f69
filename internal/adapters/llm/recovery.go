package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	"automag/internal/domain"
)

// Ступени разбора ответа модели.
const (
	StepStrict  = "strict"
	StepRelaxed = "relaxed"
	StepSpan    = "span"
)

var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

var errNotObject = errors.New("top-level value is not an object")

// ParseMaterial пробует разобрать ответ модели по очереди: строгий JSON, JSON5, затем
// жадный фрагмент от первой «{» до последней «}». Возвращает ступень, на которой разбор удался.
func ParseMaterial(raw string) (domain.Material, string, error) {
	strictData, strictErr := strictObject([]byte(raw))
	if strictErr == nil {
		return domain.NewMaterial(strictData), StepStrict, nil
	}

	relaxedData, relaxedErr := relaxedObject([]byte(raw))
	if relaxedErr == nil {
		return domain.NewMaterial(relaxedData), StepRelaxed, nil
	}

	span := objectSpan.FindString(raw)
	if span == "" {
		return domain.Material{}, "", &domain.ParseError{Raw: raw, Err: errors.New("no json object found")}
	}
	spanData, spanErr := strictObject([]byte(span))
	if spanErr == nil {
		return domain.NewMaterial(spanData), StepSpan, nil
	}
	return domain.Material{}, "", &domain.ParseError{
		Raw: raw,
		Err: fmt.Errorf("strict: %v; relaxed: %v; span: %w", strictErr, relaxedErr, spanErr),
	}
}

func strictObject(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	if _, ok := value.(map[string]any); !ok {
		return nil, errNotObject
	}
	return data, nil
}

// relaxedObject разбирает JSON5 и переводит результат в обычный JSON.
// Комментарии обоих видов вырезаются заранее: json5 не понимает /* */.
func relaxedObject(data []byte) (out []byte, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errNotObject
	}
	// json5 падает с panic на части невалидных входов.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("json5 panic: %v", r)
		}
	}()

	var value any
	if err := json5.Unmarshal(stripComments(data), &value); err != nil {
		return nil, err
	}
	if _, ok := value.(map[string]any); !ok {
		return nil, errNotObject
	}
	out, err = json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("re-encode json5 value: %w", err)
	}
	return out, nil
}

// stripComments убирает // и /* */ комментарии вне строковых литералов.
// Незакрытый блочный комментарий отрезает хвост целиком.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	var quote byte
	for i := 0; i < len(data); i++ {
		c := data[i]
		if quote != 0 {
			out = append(out, c)
			switch {
			case c == '\\' && i+1 < len(data):
				i++
				out = append(out, data[i])
			case c == quote:
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := bytes.Index(data[i+2:], []byte("*/"))
			if end < 0 {
				return out
			}
			out = append(out, ' ')
			i += end + 3
		default:
			out = append(out, c)
		}
	}
	return out
}
