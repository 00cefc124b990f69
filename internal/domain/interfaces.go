package domain

import "context"

// Ledger хранит URL, которые конвейер уже обработал.
type Ledger interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Record(ctx context.Context, url string) error
	List(ctx context.Context) ([]string, error)
}

// FeedReader превращает ленту в упорядоченный список ссылок.
type FeedReader interface {
	FetchLinks(ctx context.Context, feedURL string) ([]string, error)
}

// ArticleFetcher скачивает статью и извлекает заголовок и текст.
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (Article, error)
}

// SafetyClassifier решает, можно ли публиковать статью. Любая ошибка означает «нельзя».
type SafetyClassifier interface {
	IsSafe(ctx context.Context, title, content string) bool
}

// MaterialGenerator строит учебный материал по статье.
type MaterialGenerator interface {
	Generate(ctx context.Context, title, content, url string) (Material, error)
}

// DescriptionWriter пишет рекламное описание материала.
type DescriptionWriter interface {
	Describe(ctx context.Context, material Material) (string, error)
}

// MaterialUploader сохраняет материал вместе с производными полями.
type MaterialUploader interface {
	Upload(ctx context.Context, material Material, originalLink, originalContent string) (*StoredMaterial, error)
}

// MaterialRepo управляет таблицей materials.
type MaterialRepo interface {
	Insert(ctx context.Context, m StoredMaterial) (StoredMaterial, error)
	ListRecent(ctx context.Context, limit uint64) ([]StoredMaterial, error)
	Get(ctx context.Context, id int64) (StoredMaterial, error)
	UpdateContent(ctx context.Context, id int64, title string, content []byte) error
	Search(ctx context.Context, filter SearchFilter) ([]StoredMaterial, error)
	Featured(ctx context.Context, limit uint64) ([]StoredMaterial, error)
	Popular(ctx context.Context, limit uint64) ([]StoredMaterial, error)
	Recent(ctx context.Context, limit uint64) ([]StoredMaterial, error)
	IncrementStats(ctx context.Context, id int64, views, purchases bool) (bool, error)
}

// EventPublisher доставляет событие о новом материале во внешнюю систему.
type EventPublisher interface {
	Publish(ctx context.Context, event MaterialEvent) error
}

// RawArchive хранит сырые ответы модели для диагностики.
type RawArchive interface {
	Put(url string, raw []byte) error
	Get(url string) ([]byte, error)
}

// CycleLock не даёт двум экземплярам конвейера обрабатывать ленты одновременно.
type CycleLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}
