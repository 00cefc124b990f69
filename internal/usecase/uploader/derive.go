package uploader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"automag/internal/domain"
)

const (
	minParagraphs     = 6
	maxOriginalRunes  = 50000
	truncationMarker  = "...[内容被截断]"
	summaryPreviewLen = 100
	untitled          = "未命名文章"

	previewSummaryEnglish = "Preview available. Full content includes detailed analysis of all paragraphs."
	previewSummaryChinese = "预览版本。完整版本包含所有段落的详细分析。"
	previewNote           = "This is a preview version. Full content contains analysis of all paragraphs with complete vocabulary and grammar explanations."
)

var baseTags = []string{"外刊精读", "英语学习"}

var difficultyLabels = map[string]string{
	"beginner":     "初级",
	"intermediate": "中级",
	"advanced":     "高级",
}

var topicLabels = map[string]string{
	"politics":    "政治",
	"economy":     "经济",
	"technology":  "科技",
	"environment": "环境",
	"health":      "健康",
	"education":   "教育",
	"culture":     "文化",
	"sports":      "体育",
	"business":    "商业",
	"science":     "科学",
}

var titleKeywords = []string{"climate", "technology", "economy", "health", "education", "business", "politics"}

var blankLines = regexp.MustCompile(`\n\s*\n`)

type priceBand struct {
	minParagraphs int
	price         float64
	featured      bool
}

// Полосы идут по убыванию нижней границы; всё, что ниже 11 абзацев, бесплатно.
var priceBands = []priceBand{
	{minParagraphs: 31, price: 0.50, featured: true},
	{minParagraphs: 23, price: 0.40, featured: true},
	{minParagraphs: 19, price: 0.30},
	{minParagraphs: 15, price: 0.20},
	{minParagraphs: 11, price: 0.10},
}

// PriceFor возвращает цену и признак «рекомендуемый» по числу абзацев.
func PriceFor(paragraphs int) (float64, bool) {
	for _, band := range priceBands {
		if paragraphs >= band.minParagraphs {
			return band.price, band.featured
		}
	}
	return 0, false
}

// Title выбирает китайский заголовок, затем английский, затем заглушку.
func Title(m domain.Material) string {
	if title := strings.TrimSpace(m.TitleChinese()); title != "" {
		return title
	}
	if title := strings.TrimSpace(m.TitleEnglish()); title != "" {
		return title
	}
	return untitled
}

// Tags собирает теги материала без повторов, в порядке добавления.
func Tags(m domain.Material) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, tag := range baseTags {
		add(tag)
	}
	add(m.Source())
	if difficulty := m.Difficulty(); difficulty != "" {
		if label, ok := difficultyLabels[difficulty]; ok {
			add(label)
		} else {
			add(difficulty)
		}
	}
	for _, topic := range m.Topics() {
		if label, ok := topicLabels[topic]; ok {
			add(label)
		} else {
			add(topic)
		}
	}
	title := strings.ToLower(m.TitleEnglish())
	for _, keyword := range titleKeywords {
		if title != "" && strings.Contains(title, keyword) {
			add(keyword)
		}
	}
	return tags
}

// FallbackDescription строит описание по шаблону, когда модель не справилась.
func FallbackDescription(m domain.Material) string {
	source := m.Source()
	if source == "" {
		source = "知名外媒"
	}
	difficulty, ok := difficultyLabels[m.Difficulty()]
	if !ok {
		difficulty = "中级"
	}
	vocabulary, grammar := m.AnalysisCounts()

	var b strings.Builder
	fmt.Fprintf(&b, "来自%s的%s级英语精读材料。", source, difficulty)
	if words := m.WordCount(); words > 0 {
		fmt.Fprintf(&b, "全文约%d词，", words)
	}
	fmt.Fprintf(&b, "预计阅读时间%s分钟。", m.ReadTime("5"))
	if vocabulary > 0 {
		fmt.Fprintf(&b, "包含%d个重点词汇解析", vocabulary)
	}
	if grammar > 0 {
		fmt.Fprintf(&b, "和%d个语法要点分析。", grammar)
	} else {
		b.WriteString("。")
	}
	if summary := m.SummaryChinese(); summary != "" {
		runes := []rune(summary)
		if len(runes) > summaryPreviewLen {
			summary = string(runes[:summaryPreviewLen]) + "..."
		}
		fmt.Fprintf(&b, " 内容简介：%s", summary)
	}
	return b.String()
}

// CleanContent схлопывает пустые строки, обрезает пробелы и ограничивает длину текста.
func CleanContent(content string) string {
	content = blankLines.ReplaceAllString(content, "\n\n")
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) > maxOriginalRunes {
		content = string(runes[:maxOriginalRunes]) + truncationMarker
	}
	return content
}

// BuildPreview оставляет первые два абзаца, два слова и одну грамматическую конструкцию на абзац.
func BuildPreview(m domain.Material) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, value)
		}
	}
	setRaw := func(path, raw string) {
		if err == nil {
			doc, err = sjson.SetRawBytes(doc, path, []byte(raw))
		}
	}

	set("type", stringOr(m.Get("type"), "foreign_reading"))
	set("version", stringOr(m.Get("version"), "1.0"))
	set("source", m.Source())
	setRaw("metadata", objectOr(m.Get("metadata")))
	setRaw("content.title", objectOr(m.Get("content.title")))

	paragraphs := m.Paragraphs()
	if len(paragraphs) > 2 {
		paragraphs = paragraphs[:2]
	}
	setRaw("content.paragraphs", "[]")
	for _, p := range paragraphs {
		trimmed, perr := trimParagraph(p)
		if perr != nil {
			return nil, perr
		}
		setRaw("content.paragraphs.-1", trimmed)
	}
	set("content.summary.english", previewSummaryEnglish)
	set("content.summary.chinese", previewSummaryChinese)
	set("content.preview_note", previewNote)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return doc, nil
}

func trimParagraph(p gjson.Result) (string, error) {
	raw := p.Raw
	if !p.IsObject() {
		return raw, nil
	}
	var err error
	if vocab := p.Get("analysis.vocabulary"); vocab.IsArray() {
		raw, err = sjson.SetRaw(raw, "analysis.vocabulary", headArray(vocab, 2))
		if err != nil {
			return "", fmt.Errorf("preview: vocabulary: %w", err)
		}
	}
	if points := p.Get("analysis.grammar.points"); points.IsArray() {
		raw, err = sjson.SetRaw(raw, "analysis.grammar.points", headArray(points, 1))
		if err != nil {
			return "", fmt.Errorf("preview: grammar: %w", err)
		}
	}
	return raw, nil
}

func headArray(arr gjson.Result, n int) string {
	items := arr.Array()
	if len(items) > n {
		items = items[:n]
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Raw)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringOr(res gjson.Result, def string) string {
	if !res.Exists() || res.Type == gjson.Null {
		return def
	}
	return res.String()
}

func objectOr(res gjson.Result) string {
	if !res.IsObject() {
		return "{}"
	}
	return res.Raw
}
