package log

import (
	"strings"
	"sync"
)

// RingBuffer хранит последние строки лога для панели оператора.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRingBuffer создаёт буфер на size строк.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 500
	}
	return &RingBuffer{lines: make([]string, size)}
}

// Write реализует io.Writer. zerolog пишет одну запись за вызов.
func (b *RingBuffer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	b.mu.Lock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
	return len(p), nil
}

// Lines возвращает строки от старых к новым.
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

// String склеивает строки через перевод строки.
func (b *RingBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}
