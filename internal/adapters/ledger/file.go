package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// FileLedger хранит обработанные URL в текстовом файле, по одному на строку.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFile создаёт журнал поверх файла path. Файл появится при первой записи.
func NewFile(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Load читает все записанные URL. Отсутствующий файл означает пустой журнал.
func (l *FileLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	urls, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set, nil
}

// List возвращает URL в порядке записи, без повторов.
func (l *FileLedger) List(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	var out []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", l.path, err)
	}
	return out, nil
}

// Record дописывает URL в конец файла одной записью и сбрасывает её на диск.
func (l *FileLedger) Record(_ context.Context, url string) error {
	if err := validate(url); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	if _, err := f.WriteString(url + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("ledger: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	return f.Close()
}

// validate отсекает значения, которые сломают формат «один URL на строку».
func validate(url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("ledger: url is empty")
	}
	if strings.ContainsAny(url, "\r\n") {
		return fmt.Errorf("ledger: url contains a line break: %q", url)
	}
	return nil
}
