// Package app собирает зависимости общие для cmd/pipeline, cmd/dashboard и cmd/automagctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"automag/internal/adapters/feed"
	"automag/internal/adapters/fetcher"
	"automag/internal/adapters/ledger"
	"automag/internal/adapters/llm"
	"automag/internal/adapters/repo"
	"automag/internal/adapters/telegram"
	"automag/internal/domain"
	"automag/internal/infra/archive"
	"automag/internal/infra/cache"
	"automag/internal/infra/config"
	"automag/internal/infra/db"
	"automag/internal/infra/openai"
	"automag/internal/infra/queue"
	"automag/internal/usecase/pipeline"
	"automag/internal/usecase/uploader"
)

const cycleLockKey = "automag:cycle_lock"

// Storage держит долгоживущие подключения к хранилищам.
type Storage struct {
	Pool      *pgxpool.Pool
	Materials *repo.Postgres
	Redis     *redis.Client
	Ledger    domain.Ledger
	Archive   *archive.Badger

	closers []io.Closer
}

// OpenStorage подключается к Postgres, Redis (если задан) и открывает журнал и архив.
func OpenStorage(ctx context.Context, cfg config.AppConfig) (*Storage, error) {
	s := &Storage{}
	if cfg.PGDSN == "" {
		return nil, errors.New("PG_DSN is not set")
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s.Pool = pool
	s.Materials = repo.NewPostgres(pool)

	if cfg.RedisAddr != "" {
		s.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.closers = append(s.closers, s.Redis)
	}

	switch cfg.Ledger.Backend {
	case "", "file":
		s.Ledger = ledger.NewFile(cfg.Ledger.File)
	case "redis":
		if s.Redis == nil {
			s.Close()
			return nil, errors.New("LEDGER_BACKEND=redis requires REDIS_ADDR")
		}
		s.Ledger = ledger.NewRedis(s.Redis, cfg.Ledger.RedisKey)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.Ledger.Backend)
	}

	if cfg.Pipeline.ArchiveDir != "" {
		arc, err := archive.Open(cfg.Pipeline.ArchiveDir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.Archive = arc
		s.closers = append(s.closers, arc)
	}
	return s, nil
}

// Close закрывает все открытые подключения.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
	s.closers = nil
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Publishers создаёт получателей событий о новых материалах по конфигурации.
func (s *Storage) Publishers(cfg config.AppConfig, logger zerolog.Logger) ([]domain.EventPublisher, error) {
	var out []domain.EventPublisher
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitPublisher(cfg.RabbitURL, cfg.Queues.Materials)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		s.closers = append(s.closers, rabbit)
		out = append(out, rabbit)
	}
	if s.Redis != nil && cfg.Queues.MaterialsRedisKey != "" {
		out = append(out, queue.NewRedisPublisher(s.Redis, cfg.Queues.MaterialsRedisKey))
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChannelID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		out = append(out, telegram.NewNotifier(bot, cfg.Telegram.ChannelID))
	}
	logger.Info().Int("publishers", len(out)).Msg("app: получатели событий настроены")
	return out, nil
}

// NewPipeline собирает конвейер со всеми стадиями.
func NewPipeline(cfg config.AppConfig, s *Storage, logger zerolog.Logger) (*pipeline.Service, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	feeds, err := config.LoadFeeds(cfg.Pipeline.FeedsFile)
	if err != nil {
		return nil, err
	}
	publishers, err := s.Publishers(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout, cfg.OpenAI.DisableThinking)
	genOpts := []llm.GeneratorOption{llm.WithEcho(cfg.OpenAI.EchoStream)}
	if s.Archive != nil {
		genOpts = append(genOpts, llm.WithArchive(s.Archive))
	}

	up := uploader.NewService(
		s.Materials,
		llm.NewDescriber(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout),
		cfg.Pipeline.CreatorEmail,
		logger.With().Str("component", "uploader").Logger(),
		publishers...,
	)

	opts := []pipeline.Option{pipeline.WithInterval(cfg.Pipeline.CheckInterval)}
	if s.Redis != nil {
		owner, _ := os.Hostname()
		owner = owner + "/" + uuid.NewString()
		opts = append(opts, pipeline.WithCycleLock(cache.NewRedisLock(s.Redis, cycleLockKey, owner, cfg.Pipeline.LockTTL)))
	}

	return pipeline.NewService(
		feeds,
		feed.NewReader(cfg.Pipeline.FetchTimeout),
		fetcher.NewHTML(cfg.Pipeline.FetchTimeout),
		llm.NewClassifier(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout, logger.With().Str("component", "classifier").Logger()),
		llm.NewGenerator(client, cfg.OpenAI.Model, cfg.OpenAI.GenerationTimeout, logger.With().Str("component", "generator").Logger(), genOpts...),
		up,
		s.Ledger,
		logger.With().Str("component", "pipeline").Logger(),
		opts...,
	), nil
}
