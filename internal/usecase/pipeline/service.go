package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

const defaultInterval = 30 * time.Minute

// Outcome итог обработки одного URL.
type Outcome string

// OutcomeInterrupted означает остановку посреди обработки: такая ссылка не попадает в журнал.
const (
	OutcomeStored      Outcome = "stored"
	OutcomeUnsafe      Outcome = "unsafe"
	OutcomeRejected    Outcome = "rejected"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// URLResult описывает, чем закончилась обработка ссылки.
type URLResult struct {
	URL        string
	Outcome    Outcome
	MaterialID int64
	Err        error
}

// CycleReport сводка одного обхода лент.
type CycleReport struct {
	RunID      string
	Skipped    bool
	Feeds      int
	FeedErrors int
	Results    []URLResult
	Duration   time.Duration
}

// Count возвращает число ссылок с указанным итогом.
func (r CycleReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Option настраивает Service.
type Option func(*Service)

// WithCycleLock запускает каждый цикл под распределённой блокировкой.
func WithCycleLock(lock domain.CycleLock) Option {
	return func(s *Service) { s.lock = lock }
}

// WithInterval задаёт паузу между циклами.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Service обходит ленты и проводит каждую новую ссылку через все стадии.
type Service struct {
	feeds      []domain.Feed
	reader     domain.FeedReader
	fetcher    domain.ArticleFetcher
	classifier domain.SafetyClassifier
	generator  domain.MaterialGenerator
	uploader   domain.MaterialUploader
	ledger     domain.Ledger
	lock       domain.CycleLock
	interval   time.Duration
	log        zerolog.Logger

	processed map[string]struct{}
}

// NewService собирает конвейер.
func NewService(
	feeds []domain.Feed,
	reader domain.FeedReader,
	fetcher domain.ArticleFetcher,
	classifier domain.SafetyClassifier,
	generator domain.MaterialGenerator,
	uploader domain.MaterialUploader,
	ledger domain.Ledger,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		feeds:      feeds,
		reader:     reader,
		fetcher:    fetcher,
		classifier: classifier,
		generator:  generator,
		uploader:   uploader,
		ledger:     ledger,
		interval:   defaultInterval,
		log:        logger,
		processed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load читает журнал обработанных ссылок в память.
func (s *Service) Load(ctx context.Context) error {
	seen, err := s.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: load ledger: %w", err)
	}
	s.processed = seen
	if s.processed == nil {
		s.processed = make(map[string]struct{})
	}
	s.log.Info().Int("processed", len(s.processed)).Msg("pipeline: журнал загружен")
	return nil
}

// refresh дополняет снимок журнала записями, сделанными другими экземплярами.
func (s *Service) refresh(ctx context.Context) error {
	seen, err := s.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: reload ledger: %w", err)
	}
	for url := range seen {
		s.processed[url] = struct{}{}
	}
	return nil
}

// Run загружает журнал и обходит ленты с паузой до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	for {
		s.RunCycle(ctx)

		s.log.Info().Dur("interval", s.interval).Msg("pipeline: ждём следующий цикл")
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("pipeline: остановлен")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle один раз обходит все ленты. Каждая увиденная новая ссылка попадает в журнал ровно один раз.
func (s *Service) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{RunID: uuid.NewString()}
	log := s.log.With().Str("run_id", report.RunID).Logger()
	start := time.Now()

	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx)
		if err != nil {
			log.Error().Err(err).Msg("pipeline: не удалось взять блокировку цикла, цикл пропущен")
			report.Skipped = true
			return report
		}
		if !ok {
			log.Info().Msg("pipeline: цикл уже выполняется другим экземпляром")
			report.Skipped = true
			return report
		}
		defer func() {
			// Контекст цикла может быть уже отменён, блокировку всё равно снимаем.
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.lock.Unlock(unlockCtx); err != nil {
				log.Warn().Err(err).Msg("pipeline: не удалось снять блокировку цикла")
			}
		}()
	}

	if err := s.refresh(ctx); err != nil {
		log.Error().Err(err).Msg("pipeline: не удалось перечитать журнал, цикл пропущен")
		report.Skipped = true
		return report
	}

	log.Info().Int("feeds", len(s.feeds)).Int("processed", len(s.processed)).Msg("pipeline: начинаем цикл")
	for _, feed := range s.feeds {
		if ctx.Err() != nil {
			break
		}
		report.Feeds++
		links, err := s.reader.FetchLinks(ctx, feed.URL)
		if err != nil {
			report.FeedErrors++
			metrics.FeedErrors.WithLabelValues(feed.Name).Inc()
			log.Error().Err(err).Str("feed", feed.Name).Str("kind", domain.ErrorKind(err)).Msg("pipeline: лента недоступна")
			continue
		}
		log.Info().Str("feed", feed.Name).Int("links", len(links)).Msg("pipeline: лента прочитана")

		for _, link := range links {
			if ctx.Err() != nil {
				break
			}
			// Пустую ссылку нельзя записать в журнал, её просто пропускаем.
			if link == "" {
				log.Warn().Str("feed", feed.Name).Msg("pipeline: пустая ссылка в ленте пропущена")
				continue
			}
			if _, done := s.processed[link]; done {
				continue
			}
			res := s.handle(ctx, log, link)
			report.Results = append(report.Results, res)
		}
	}

	report.Duration = time.Since(start)
	metrics.PipelineCycles.Inc()
	metrics.PipelineCycleSeconds.Observe(report.Duration.Seconds())
	log.Info().
		Int("new", len(report.Results)).
		Int("stored", report.Count(OutcomeStored)).
		Int("unsafe", report.Count(OutcomeUnsafe)).
		Int("rejected", report.Count(OutcomeRejected)).
		Int("failed", report.Count(OutcomeFailed)).
		Int("interrupted", report.Count(OutcomeInterrupted)).
		Int("feed_errors", report.FeedErrors).
		Dur("duration", report.Duration).
		Msg("pipeline: цикл завершён")
	return report
}

// ProcessURL проводит одну ссылку через все стадии и записывает её в журнал.
func (s *Service) ProcessURL(ctx context.Context, url string) URLResult {
	return s.handle(ctx, s.log, url)
}

func (s *Service) handle(ctx context.Context, log zerolog.Logger, url string) URLResult {
	log = log.With().Str("url", url).Logger()
	res := s.process(ctx, log, url)

	// Прерванную ссылку не записываем, после перезапуска она обработается заново.
	if ctx.Err() != nil && res.Outcome != OutcomeStored {
		res.Outcome = OutcomeInterrupted
		if res.Err == nil {
			res.Err = ctx.Err()
		}
		metrics.ObserveURL(string(res.Outcome))
		log.Warn().Err(res.Err).Msg("pipeline: обработка прервана, ссылка не записана в журнал")
		return res
	}

	s.processed[url] = struct{}{}
	if err := s.ledger.Record(context.WithoutCancel(ctx), url); err != nil {
		log.Error().Err(err).Msg("pipeline: не удалось записать ссылку в журнал")
		res.Outcome = OutcomeFailed
		res.Err = errors.Join(res.Err, err)
	}

	metrics.ObserveURL(string(res.Outcome))
	if res.Err != nil {
		log.Error().Err(res.Err).Str("kind", domain.ErrorKind(res.Err)).Msg("pipeline: ссылка обработана с ошибкой")
	}
	return res
}

func (s *Service) process(ctx context.Context, log zerolog.Logger, url string) URLResult {
	res := URLResult{URL: url, Outcome: OutcomeFailed}
	if url == "" {
		res.Err = fmt.Errorf("pipeline: %w: empty link", domain.ErrExtraction)
		return res
	}

	article, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}
	log.Info().Str("title", article.Title).Int("chars", len([]rune(article.Content))).Msg("pipeline: статья скачана")

	if !s.classifier.IsSafe(ctx, article.Title, article.Content) {
		log.Info().Str("title", article.Title).Msg("pipeline: статья отклонена модерацией")
		res.Outcome = OutcomeUnsafe
		return res
	}

	material, err := s.generator.Generate(ctx, article.Title, article.Content, url)
	if err != nil {
		res.Err = fmt.Errorf("generate: %w", err)
		return res
	}
	log.Info().Int("paragraphs", material.ParagraphCount()).Msg("pipeline: материал сгенерирован")

	stored, err := s.uploader.Upload(ctx, material, url, article.Content)
	if err != nil {
		res.Err = fmt.Errorf("upload: %w", err)
		return res
	}
	if stored == nil {
		res.Outcome = OutcomeRejected
		return res
	}
	res.Outcome = OutcomeStored
	res.MaterialID = stored.ID
	return res
}
