package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

const (
	// Часть изданий отдаёт 403 на запросы без браузерного User-Agent.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	untitled         = "无法提取标题"
	maxBodyBytes     = 10 << 20
)

// HTML скачивает страницу статьи и извлекает заголовок и текст.
type HTML struct {
	client *http.Client
}

// NewHTML создаёт загрузчик с таймаутом на весь запрос.
func NewHTML(timeout time.Duration) *HTML {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTML{client: &http.Client{Timeout: timeout}}
}

// Fetch скачивает статью по ссылке.
func (h *HTML) Fetch(ctx context.Context, rawURL string) (domain.Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Host == "" {
		return domain.Article{}, fmt.Errorf("fetcher: invalid url %q: %w", rawURL, domain.ErrNetwork)
	}
	body, err := h.download(ctx, rawURL)
	if err != nil {
		return domain.Article{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Article{}, fmt.Errorf("fetcher: parse html: %w: %w", domain.ErrExtraction, err)
	}
	title := extractTitle(doc)
	content := extractBody(doc)

	if content == "" || title == "" {
		if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
			if title == "" {
				title = strings.TrimSpace(article.Title)
			}
			if content == "" {
				content = htmlText(article.Content)
			}
		}
	}
	if title == "" {
		title = untitled
	}
	if content == "" {
		return domain.Article{}, fmt.Errorf("fetcher: %s: %w: no paragraph text", rawURL, domain.ErrExtraction)
	}
	return domain.Article{Title: title, Content: content, SourceURL: rawURL}, nil
}

func (h *HTML) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w: %w", domain.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("fetcher", "get", req.URL.Host, start, err)
		return nil, fmt.Errorf("fetcher: get %s: %w: %w", rawURL, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("fetcher: get %s: %w: status %d", rawURL, domain.ErrNetwork, resp.StatusCode)
		metrics.ObserveNetworkRequest("fetcher", "get", req.URL.Host, start, err)
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveNetworkRequest("fetcher", "get", req.URL.Host, start, err)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read %s: %w: %w", rawURL, domain.ErrNetwork, err)
	}
	return body, nil
}

func extractTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractBody берёт абзацы первого article, при его отсутствии первого main, иначе все абзацы страницы.
func extractBody(doc *goquery.Document) string {
	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}
	if container.Length() > 0 {
		if text := joinParagraphs(container.Find("p")); text != "" {
			return text
		}
	}
	return joinParagraphs(doc.Find("p"))
}

func joinParagraphs(sel *goquery.Selection) string {
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.TrimSpace(strings.Join(parts, " "))
}

func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	if text := joinParagraphs(doc.Find("p")); text != "" {
		return text
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
