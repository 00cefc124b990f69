package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automag/internal/adapters/ledger"
	"automag/internal/domain"
	"automag/internal/usecase/uploader"
)

type stubReader struct {
	links map[string][]string
	errs  map[string]error
}

func (r stubReader) FetchLinks(_ context.Context, feedURL string) ([]string, error) {
	if err := r.errs[feedURL]; err != nil {
		return nil, err
	}
	return r.links[feedURL], nil
}

type stubFetcher struct {
	calls []string
	errs  map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (domain.Article, error) {
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return domain.Article{}, err
	}
	return domain.Article{Title: "title " + url, Content: "body of " + url, SourceURL: url}, nil
}

type stubClassifier struct {
	unsafe map[string]bool
}

func (c stubClassifier) IsSafe(_ context.Context, title, _ string) bool {
	return !c.unsafe[strings.TrimPrefix(title, "title ")]
}

type stubGenerator struct {
	calls      []string
	paragraphs int

	// cancel останавливает конвейер посреди генерации; при cancelOK материал всё же возвращается.
	cancel   context.CancelFunc
	cancelOK bool
}

func (g *stubGenerator) Generate(ctx context.Context, _, _, url string) (domain.Material, error) {
	g.calls = append(g.calls, url)
	if g.cancel != nil {
		g.cancel()
		if !g.cancelOK {
			return domain.Material{}, fmt.Errorf("generator: %w: %w", domain.ErrUpstreamAI, ctx.Err())
		}
	}
	parts := make([]string, 0, g.paragraphs)
	for i := 0; i < g.paragraphs; i++ {
		parts = append(parts, fmt.Sprintf(`{"id":%d,"english":"p"}`, i+1))
	}
	return domain.NewMaterial([]byte(`{"source":"AP News","content":{"title":{"chinese":"标题"},"paragraphs":[` + strings.Join(parts, ",") + `]}}`)), nil
}

type memRepo struct {
	rows []domain.StoredMaterial
}

func (r *memRepo) Insert(_ context.Context, m domain.StoredMaterial) (domain.StoredMaterial, error) {
	m.ID = int64(len(r.rows) + 1)
	r.rows = append(r.rows, m)
	return m, nil
}
func (r *memRepo) ListRecent(context.Context, uint64) ([]domain.StoredMaterial, error) {
	return r.rows, nil
}
func (r *memRepo) Get(context.Context, int64) (domain.StoredMaterial, error) {
	return domain.StoredMaterial{}, domain.ErrNotFound
}
func (r *memRepo) UpdateContent(context.Context, int64, string, []byte) error { return nil }
func (r *memRepo) Search(context.Context, domain.SearchFilter) ([]domain.StoredMaterial, error) {
	return nil, nil
}
func (r *memRepo) Featured(context.Context, uint64) ([]domain.StoredMaterial, error) {
	return nil, nil
}
func (r *memRepo) Popular(context.Context, uint64) ([]domain.StoredMaterial, error) {
	return nil, nil
}
func (r *memRepo) Recent(context.Context, uint64) ([]domain.StoredMaterial, error) {
	return nil, nil
}
func (r *memRepo) IncrementStats(context.Context, int64, bool, bool) (bool, error) {
	return false, nil
}

type stubLock struct {
	free     bool
	err      error
	unlocked int
}

func (l *stubLock) TryLock(context.Context) (bool, error) { return l.free, l.err }
func (l *stubLock) Unlock(context.Context) error {
	l.unlocked++
	return nil
}

type fixture struct {
	svc       *Service
	fetcher   *stubFetcher
	generator *stubGenerator
	repo      *memRepo
	ledger    *ledger.FileLedger
}

func newFixture(t *testing.T, reader stubReader, classifier stubClassifier, feeds []domain.Feed, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:   &stubFetcher{},
		generator: &stubGenerator{paragraphs: 12},
		repo:      &memRepo{},
		ledger:    ledger.NewFile(filepath.Join(t.TempDir(), "processed_urls.txt")),
	}
	logger := zerolog.New(io.Discard)
	up := uploader.NewService(f.repo, nil, "", logger)
	f.svc = NewService(feeds, reader, f.fetcher, classifier, f.generator, up, f.ledger, logger, opts...)
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

var oneFeed = []domain.Feed{{Name: "AP News", URL: "feed-1"}}

func TestCycleStoresSafeAndSkipsUnsafe(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A", "B"}}},
		stubClassifier{unsafe: map[string]bool{"B": true}},
		oneFeed,
	)

	report := f.svc.RunCycle(context.Background())

	require.Len(t, report.Results, 2)
	assert.Equal(t, OutcomeStored, report.Results[0].Outcome)
	assert.Equal(t, OutcomeUnsafe, report.Results[1].Outcome)

	require.Len(t, f.repo.rows, 1)
	assert.InDelta(t, 0.10, f.repo.rows[0].Price, 1e-9)
	assert.False(t, f.repo.rows[0].IsFeatured)
	assert.Equal(t, "A", f.repo.rows[0].OriginalLink)
	assert.Equal(t, []string{"A"}, f.generator.calls)

	urls, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, urls)
}

func TestCycleIsIdempotent(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A", "B", "A"}}},
		stubClassifier{},
		oneFeed,
	)

	first := f.svc.RunCycle(context.Background())
	assert.Len(t, first.Results, 2, "повтор ссылки в одном цикле обрабатывается один раз")

	second := f.svc.RunCycle(context.Background())
	assert.Empty(t, second.Results)
	assert.Equal(t, []string{"A", "B"}, f.fetcher.calls)

	urls, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, urls)
}

func TestFailedURLIsStillRecorded(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A", "B"}}},
		stubClassifier{},
		oneFeed,
	)
	f.fetcher.errs = map[string]error{"A": fmt.Errorf("get: %w", domain.ErrNetwork)}

	report := f.svc.RunCycle(context.Background())

	require.Len(t, report.Results, 2)
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.ErrorIs(t, report.Results[0].Err, domain.ErrNetwork)
	assert.Equal(t, OutcomeStored, report.Results[1].Outcome)

	seen, err := f.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, seen, "A")
	assert.Contains(t, seen, "B")
}

func TestShortMaterialIsRejected(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A"}}},
		stubClassifier{},
		oneFeed,
	)
	f.generator.paragraphs = 5

	report := f.svc.RunCycle(context.Background())

	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeRejected, report.Results[0].Outcome)
	assert.NoError(t, report.Results[0].Err)
	assert.Empty(t, f.repo.rows)
}

func TestFeedErrorDoesNotBlockOtherFeeds(t *testing.T) {
	feeds := []domain.Feed{{Name: "broken", URL: "feed-0"}, {Name: "AP News", URL: "feed-1"}}
	f := newFixture(t,
		stubReader{
			links: map[string][]string{"feed-1": {"A"}},
			errs:  map[string]error{"feed-0": errors.New("dns failure")},
		},
		stubClassifier{},
		feeds,
	)

	report := f.svc.RunCycle(context.Background())

	assert.Equal(t, 2, report.Feeds)
	assert.Equal(t, 1, report.FeedErrors)
	assert.Equal(t, 1, report.Count(OutcomeStored))
}

func TestProcessURLRecordsLedger(t *testing.T) {
	f := newFixture(t, stubReader{}, stubClassifier{}, oneFeed)

	res := f.svc.ProcessURL(context.Background(), "https://example.com/a")
	assert.Equal(t, OutcomeStored, res.Outcome)
	assert.Equal(t, int64(1), res.MaterialID)

	seen, err := f.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, seen, "https://example.com/a")
}

func TestCycleLock(t *testing.T) {
	reader := stubReader{links: map[string][]string{"feed-1": {"A"}}}

	busy := &stubLock{free: false}
	f := newFixture(t, reader, stubClassifier{}, oneFeed, WithCycleLock(busy))
	report := f.svc.RunCycle(context.Background())
	assert.True(t, report.Skipped)
	assert.Empty(t, f.fetcher.calls)
	assert.Zero(t, busy.unlocked)

	free := &stubLock{free: true}
	f = newFixture(t, reader, stubClassifier{}, oneFeed, WithCycleLock(free))
	report = f.svc.RunCycle(context.Background())
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, free.unlocked)

	broken := &stubLock{err: errors.New("redis down")}
	f = newFixture(t, reader, stubClassifier{}, oneFeed, WithCycleLock(broken))
	report = f.svc.RunCycle(context.Background())
	assert.True(t, report.Skipped)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, stubReader{links: map[string][]string{"feed-1": {"A"}}}, stubClassifier{}, oneFeed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, f.svc.Run(ctx))
}

func TestInterruptedURLIsNotRecorded(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A", "B"}}},
		stubClassifier{},
		oneFeed,
	)
	ctx, cancel := context.WithCancel(context.Background())
	f.generator.cancel = cancel

	report := f.svc.RunCycle(ctx)

	require.Len(t, report.Results, 1, "после остановки следующие ссылки не берутся")
	assert.Equal(t, OutcomeInterrupted, report.Results[0].Outcome)
	assert.ErrorIs(t, report.Results[0].Err, context.Canceled)
	urls, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, urls)

	f.generator.cancel = nil
	report = f.svc.RunCycle(context.Background())
	require.Len(t, report.Results, 2, "прерванная ссылка должна обработаться заново")
	assert.Equal(t, OutcomeStored, report.Results[0].Outcome)
	urls, err = f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, urls)
}

func TestStoredURLIsRecordedDespiteCancel(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"A"}}},
		stubClassifier{},
		oneFeed,
	)
	ctx, cancel := context.WithCancel(context.Background())
	f.generator.cancel = cancel
	f.generator.cancelOK = true

	report := f.svc.RunCycle(ctx)

	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeStored, report.Results[0].Outcome)
	require.Len(t, f.repo.rows, 1)
	urls, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, urls, "сохранённый материал должен попасть в журнал")
}

func TestCycleSeesURLsRecordedByAnotherInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	shared := ledger.NewRedis(client, "automag:processed")

	reader := stubReader{links: map[string][]string{"feed-1": {"X"}}}
	repo := &memRepo{}
	logger := zerolog.New(io.Discard)
	newInstance := func() (*Service, *stubGenerator) {
		gen := &stubGenerator{paragraphs: 12}
		up := uploader.NewService(repo, nil, "", logger)
		svc := NewService(oneFeed, reader, &stubFetcher{}, stubClassifier{}, gen, up, shared, logger)
		require.NoError(t, svc.Load(context.Background()))
		return svc, gen
	}
	first, firstGen := newInstance()
	second, secondGen := newInstance()

	first.RunCycle(context.Background())
	report := second.RunCycle(context.Background())

	assert.Equal(t, []string{"X"}, firstGen.calls)
	assert.Empty(t, secondGen.calls, "второй экземпляр не должен повторять чужую ссылку")
	assert.Empty(t, report.Results)
	assert.Len(t, repo.rows, 1)
}

func TestEmptyLinkIsSkipped(t *testing.T) {
	f := newFixture(t,
		stubReader{links: map[string][]string{"feed-1": {"", "A"}}},
		stubClassifier{},
		oneFeed,
	)

	report := f.svc.RunCycle(context.Background())

	require.Len(t, report.Results, 1)
	assert.Equal(t, "A", report.Results[0].URL)
	assert.Equal(t, []string{"A"}, f.fetcher.calls)
	urls, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, urls)

	res := f.svc.ProcessURL(context.Background(), "")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrExtraction)
}
