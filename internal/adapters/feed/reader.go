package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

const userAgent = "Mozilla/5.0 (compatible; autoMag/1.0; +https://inkcraft.cn)"

// Reader читает RSS/Atom ленты.
type Reader struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewReader создаёт читателя лент с таймаутом на запрос.
func NewReader(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Reader{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// FetchLinks возвращает ссылки элементов ленты в исходном порядке, включая пустые.
func (r *Reader) FetchLinks(ctx context.Context, feedURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("feed", "fetch", feedURL, start, err)
		return nil, fmt.Errorf("feed: get %s: %w: %w", feedURL, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("feed: get %s: %w: status %d", feedURL, domain.ErrNetwork, resp.StatusCode)
		metrics.ObserveNetworkRequest("feed", "fetch", feedURL, start, err)
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest("feed", "fetch", feedURL, start, err)
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w: %w", feedURL, domain.ErrNetwork, err)
	}

	parsed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", feedURL, err)
	}
	links := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		links = append(links, item.Link)
	}
	return links, nil
}
