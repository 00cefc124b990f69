package domain

import (
	"errors"
	"fmt"
)

// Виды ошибок конвейера. Адаптеры оборачивают их через %w, оркестратор различает через errors.Is.
var (
	ErrNetwork     = errors.New("network error")
	ErrExtraction  = errors.New("extraction error")
	ErrUpstreamAI  = errors.New("upstream ai failure")
	ErrParse       = errors.New("unparseable model output")
	ErrGeneration  = errors.New("generation failure")
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("not found")
)

// ParseError возвращается, когда ни одна ступень разбора не справилась с ответом модели.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrParse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrParse, e.Err)
}

// Unwrap позволяет сопоставить ошибку и с ErrParse, и с исходной причиной.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// ErrorKind возвращает метку вида ошибки для логов и метрик.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrUpstreamAI):
		return "upstream_ai"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
