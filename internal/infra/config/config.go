package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"automag/internal/domain"
)

// DefaultFeeds используется, если FEEDS_FILE не задан.
var DefaultFeeds = []domain.Feed{
	{Name: "AP News", URL: "https://rss.app/feeds/Aky8aKeBMoukkG5O.xml"},
}

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	OpenAI struct {
		APIKey          string        `envconfig:"OPENAI_API_KEY"`
		BaseURL         string        `envconfig:"OPENAI_BASE_URL"`
		Model           string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout         time.Duration `envconfig:"OPENAI_TIMEOUT" default:"10m"`
		DisableThinking bool          `envconfig:"OPENAI_DISABLE_THINKING" default:"true"`
		EchoStream      bool          `envconfig:"ECHO_STREAM" default:"false"`

		// GenerationTimeout 0 отключает ограничение на потоковую генерацию.
		GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"0s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Telegram struct {
		Token     string `envconfig:"TG_BOT_TOKEN"`
		ChannelID int64  `envconfig:"TG_CHANNEL_ID"`
	} `envconfig:""`

	Queues struct {
		Materials         string `envconfig:"MATERIALS_QUEUE" default:"material_events"`
		MaterialsRedisKey string `envconfig:"MATERIALS_REDIS_KEY" default:"automag:material_events"`
	} `envconfig:""`

	Ledger struct {
		Backend  string `envconfig:"LEDGER_BACKEND" default:"file"`
		File     string `envconfig:"LEDGER_FILE" default:"processed_urls.txt"`
		RedisKey string `envconfig:"LEDGER_REDIS_KEY" default:"automag:processed_urls"`
	} `envconfig:""`

	Pipeline struct {
		CheckInterval time.Duration `envconfig:"CHECK_INTERVAL" default:"30m"`
		FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
		FeedsFile     string        `envconfig:"FEEDS_FILE"`
		ArchiveDir    string        `envconfig:"ARCHIVE_DIR"`
		CreatorEmail  string        `envconfig:"CREATOR_EMAIL" default:"magBot@inkcraft.cn"`
		LockTTL       time.Duration `envconfig:"CYCLE_LOCK_TTL" default:"25m"`
	} `envconfig:""`

	Dashboard struct {
		AccessKey string `envconfig:"DASHBOARD_ACCESS_KEY"`
		SecretKey string `envconfig:"DASHBOARD_SECRET_KEY"`
		LogLines  int    `envconfig:"DASHBOARD_LOG_LINES" default:"500"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

type feedsFile struct {
	Feeds []domain.Feed `yaml:"feeds"`
}

// LoadFeeds читает список лент из YAML. Пустой путь означает ленты по умолчанию.
func LoadFeeds(path string) ([]domain.Feed, error) {
	if path == "" {
		return DefaultFeeds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	return ParseFeeds(data)
}

// ParseFeeds разбирает YAML со списком лент, сохраняя порядок.
func ParseFeeds(data []byte) ([]domain.Feed, error) {
	var parsed feedsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	feeds := make([]domain.Feed, 0, len(parsed.Feeds))
	for i, f := range parsed.Feeds {
		if f.URL == "" {
			return nil, fmt.Errorf("feed #%d: url is empty", i+1)
		}
		if f.Name == "" {
			f.Name = f.URL
		}
		feeds = append(feeds, f)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("feeds file has no feeds")
	}
	return feeds, nil
}
