package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

const (
	table = "materials"

	defaultSearchLimit   = 20
	defaultFeaturedLimit = 10
	defaultPopularLimit  = 10
	defaultRecentLimit   = 20
)

var columns = []string{
	"id", "title", "description", "tags", "category",
	"original_content", "original_link", "material_content", "preview_content",
	"price", "creator_email", "owners", "purchase_count", "view_count",
	"is_published", "is_featured", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres реализует domain.MaterialRepo на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.MaterialRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Insert сохраняет запись и возвращает её с id и created_at.
func (p *Postgres) Insert(ctx context.Context, m domain.StoredMaterial) (domain.StoredMaterial, error) {
	query, args, err := insertQuery(m)
	if err != nil {
		return domain.StoredMaterial{}, fmt.Errorf("build insert: %w", err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, query, args...)
	stored, err := scanMaterial(row)
	metrics.ObserveNetworkRequest("postgres", "materials_insert", table, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredMaterial{}, fmt.Errorf("insert material: %w", domain.ErrPersistence)
	}
	if err != nil {
		return domain.StoredMaterial{}, fmt.Errorf("insert material: %w", err)
	}
	return stored, nil
}

// ListRecent возвращает все материалы, новые первыми.
func (p *Postgres) ListRecent(ctx context.Context, limit uint64) ([]domain.StoredMaterial, error) {
	q := psql.Select(columns...).From(table).OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return p.list(ctx, "materials_list", q)
}

// Get возвращает материал по id.
func (p *Postgres) Get(ctx context.Context, id int64) (domain.StoredMaterial, error) {
	query, args, err := psql.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.StoredMaterial{}, fmt.Errorf("build get: %w", err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	stored, err := scanMaterial(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "materials_get", table, start, nil)
		return domain.StoredMaterial{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "materials_get", table, start, err)
	if err != nil {
		return domain.StoredMaterial{}, fmt.Errorf("get material %d: %w", id, err)
	}
	return stored, nil
}

// UpdateContent меняет заголовок и material_content.content.
func (p *Postgres) UpdateContent(ctx context.Context, id int64, title string, content []byte) error {
	query, args, err := updateContentQuery(id, title, content)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "materials_update", table, start, err)
	if err != nil {
		return fmt.Errorf("update material %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Search ищет опубликованные материалы по тексту, категории и тегам.
func (p *Postgres) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.StoredMaterial, error) {
	return p.list(ctx, "materials_search", searchQuery(filter))
}

// Featured возвращает рекомендуемые материалы.
func (p *Postgres) Featured(ctx context.Context, limit uint64) ([]domain.StoredMaterial, error) {
	q := published().Where(sq.Eq{"is_featured": true}).OrderBy("created_at DESC").Limit(orDefault(limit, defaultFeaturedLimit))
	return p.list(ctx, "materials_featured", q)
}

// Popular возвращает материалы с наибольшим числом просмотров.
func (p *Postgres) Popular(ctx context.Context, limit uint64) ([]domain.StoredMaterial, error) {
	q := published().OrderBy("view_count DESC", "created_at DESC").Limit(orDefault(limit, defaultPopularLimit))
	return p.list(ctx, "materials_popular", q)
}

// Recent возвращает последние опубликованные материалы.
func (p *Postgres) Recent(ctx context.Context, limit uint64) ([]domain.StoredMaterial, error) {
	q := published().OrderBy("created_at DESC").Limit(orDefault(limit, defaultRecentLimit))
	return p.list(ctx, "materials_recent", q)
}

// IncrementStats атомарно увеличивает счётчики. false, если ничего не запрошено или записи нет.
func (p *Postgres) IncrementStats(ctx context.Context, id int64, views, purchases bool) (bool, error) {
	q, ok := incrementQuery(id, views, purchases)
	if !ok {
		return false, nil
	}
	query, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build increment: %w", err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "materials_increment", table, start, err)
	if err != nil {
		return false, fmt.Errorf("increment stats %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) list(ctx context.Context, operation string, q sq.SelectBuilder) ([]domain.StoredMaterial, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", operation, err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", operation, table, start, err)
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	var out []domain.StoredMaterial
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			metrics.ObserveNetworkRequest("postgres", operation, table, start, err)
			return nil, fmt.Errorf("%s: scan: %w", operation, err)
		}
		out = append(out, m)
	}
	err = rows.Err()
	metrics.ObserveNetworkRequest("postgres", operation, table, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return out, nil
}

func insertQuery(m domain.StoredMaterial) (string, []any, error) {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	owners := m.Owners
	if owners == nil {
		owners = []string{}
	}
	return psql.Insert(table).
		Columns(
			"title", "description", "tags", "category",
			"original_content", "original_link", "material_content", "preview_content",
			"price", "creator_email", "owners", "purchase_count", "view_count",
			"is_published", "is_featured",
		).
		Values(
			m.Title, m.Description, tags, m.Category,
			m.OriginalContent, m.OriginalLink, jsonOrEmpty(m.MaterialContent), jsonOrEmpty(m.PreviewContent),
			m.Price, m.CreatorEmail, owners, m.PurchaseCount, m.ViewCount,
			m.IsPublished, m.IsFeatured,
		).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
}

func updateContentQuery(id int64, title string, content []byte) (string, []any, error) {
	return psql.Update(table).
		Set("title", title).
		Set("material_content", sq.Expr("jsonb_set(COALESCE(material_content, '{}'::jsonb), '{content}', ?::jsonb)", string(content))).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func searchQuery(filter domain.SearchFilter) sq.SelectBuilder {
	q := published()
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if len(filter.Tags) > 0 {
		q = q.Where(sq.Expr("tags @> ?", filter.Tags))
	}
	if text := strings.TrimSpace(filter.Query); text != "" {
		pattern := "%" + text + "%"
		q = q.Where(sq.Or{sq.ILike{"title": pattern}, sq.ILike{"description": pattern}})
	}
	return q.OrderBy("created_at DESC").Limit(orDefault(filter.Limit, defaultSearchLimit))
}

func incrementQuery(id int64, views, purchases bool) (sq.UpdateBuilder, bool) {
	if !views && !purchases {
		return sq.UpdateBuilder{}, false
	}
	q := psql.Update(table)
	if views {
		q = q.Set("view_count", sq.Expr("view_count + 1"))
	}
	if purchases {
		q = q.Set("purchase_count", sq.Expr("purchase_count + 1"))
	}
	return q.Where(sq.Eq{"id": id}), true
}

func published() sq.SelectBuilder {
	return psql.Select(columns...).From(table).Where(sq.Eq{"is_published": true})
}

func orDefault(limit, def uint64) uint64 {
	if limit == 0 {
		return def
	}
	return limit
}

func jsonOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func scanMaterial(row pgx.Row) (domain.StoredMaterial, error) {
	var (
		m       domain.StoredMaterial
		content []byte
		preview []byte
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &m.Tags, &m.Category,
		&m.OriginalContent, &m.OriginalLink, &content, &preview,
		&m.Price, &m.CreatorEmail, &m.Owners, &m.PurchaseCount, &m.ViewCount,
		&m.IsPublished, &m.IsFeatured, &m.CreatedAt,
	)
	if err != nil {
		return domain.StoredMaterial{}, err
	}
	m.MaterialContent = content
	m.PreviewContent = preview
	return m, nil
}
