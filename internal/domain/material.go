package domain

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// Article статья, скачанная по ссылке из ленты. Живёт только в рамках обработки одного URL.
type Article struct {
	Title     string
	Content   string
	SourceURL string
}

// Material учебный материал, сгенерированный моделью.
// Документ хранится как есть: схема не проверяется, все поля читаются с умолчаниями.
type Material struct {
	raw []byte
}

// NewMaterial оборачивает JSON-объект материала.
func NewMaterial(raw []byte) Material {
	return Material{raw: raw}
}

// Raw возвращает исходный JSON.
func (m Material) Raw() []byte { return m.raw }

// JSON возвращает документ для записи в jsonb.
func (m Material) JSON() json.RawMessage {
	if len(m.raw) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(m.raw)
}

// Get читает произвольный путь gjson.
func (m Material) Get(path string) gjson.Result {
	return gjson.GetBytes(m.raw, path)
}

func (m Material) str(path string) string {
	res := m.Get(path)
	if !res.Exists() || res.Type == gjson.Null {
		return ""
	}
	return res.String()
}

// Type возвращает тип документа.
func (m Material) Type() string { return m.str("type") }

// Version возвращает версию схемы документа.
func (m Material) Version() string { return m.str("version") }

// Source возвращает название издания.
func (m Material) Source() string { return m.str("source") }

// Difficulty возвращает уровень сложности (beginner, intermediate, advanced).
func (m Material) Difficulty() string { return m.str("metadata.difficulty") }

// WordCount возвращает число слов статьи, 0 если модель его не указала.
func (m Material) WordCount() int64 { return m.Get("metadata.wordCount").Int() }

// ReadTime возвращает время чтения в том виде, в котором его вернула модель, или def.
func (m Material) ReadTime(def string) string {
	if v := m.str("metadata.estimatedReadTime"); v != "" {
		return v
	}
	return def
}

// Topics возвращает список тем статьи.
func (m Material) Topics() []string {
	return stringList(m.Get("metadata.topics"))
}

// TitleEnglish возвращает английский заголовок.
func (m Material) TitleEnglish() string { return m.str("content.title.english") }

// TitleChinese возвращает китайский перевод заголовка.
func (m Material) TitleChinese() string { return m.str("content.title.chinese") }

// SummaryChinese возвращает краткое содержание на китайском.
func (m Material) SummaryChinese() string { return m.str("content.summary.chinese") }

// Paragraphs возвращает абзацы материала. Не массив считается отсутствием абзацев.
func (m Material) Paragraphs() []gjson.Result {
	res := m.Get("content.paragraphs")
	if !res.IsArray() {
		return nil
	}
	return res.Array()
}

// ParagraphCount возвращает количество абзацев.
func (m Material) ParagraphCount() int { return len(m.Paragraphs()) }

// AnalysisCounts считает разобранные слова и грамматические конструкции по всем абзацам.
func (m Material) AnalysisCounts() (vocabulary, grammar int) {
	for _, p := range m.Paragraphs() {
		if v := p.Get("analysis.vocabulary"); v.IsArray() {
			vocabulary += len(v.Array())
		}
		if g := p.Get("analysis.grammar.points"); g.IsArray() {
			grammar += len(g.Array())
		}
	}
	return vocabulary, grammar
}

func stringList(res gjson.Result) []string {
	if !res.IsArray() {
		return nil
	}
	out := make([]string, 0, len(res.Array()))
	for _, item := range res.Array() {
		if item.Type == gjson.Null {
			continue
		}
		out = append(out, item.String())
	}
	return out
}

// StoredMaterial запись таблицы materials.
type StoredMaterial struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Tags            []string        `json:"tags"`
	Category        string          `json:"category"`
	OriginalContent string          `json:"original_content"`
	OriginalLink    string          `json:"original_link"`
	MaterialContent json.RawMessage `json:"material_content"`
	PreviewContent  json.RawMessage `json:"preview_content"`
	Price           float64         `json:"price"`
	CreatorEmail    string          `json:"creator_email"`
	Owners          []string        `json:"owners"`
	PurchaseCount   int             `json:"purchase_count"`
	ViewCount       int             `json:"view_count"`
	IsPublished     bool            `json:"is_published"`
	IsFeatured      bool            `json:"is_featured"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SearchFilter задаёт выборку опубликованных материалов.
type SearchFilter struct {
	Query    string
	Category string
	Tags     []string
	Limit    uint64
}

// MaterialEvent публикуется после сохранения нового материала.
type MaterialEvent struct {
	EventID     string    `json:"event_id"`
	MaterialID  int64     `json:"material_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Featured    bool      `json:"featured"`
	Tags        []string  `json:"tags"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// Feed описывает RSS-ленту из конфигурации.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}
