package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"automag/internal/app"
	"automag/internal/infra/config"
	applog "automag/internal/infra/log"
	"automag/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline: не удалось подключить хранилища")
	}
	defer storage.Close()

	service, err := app.NewPipeline(cfg, storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline: не удалось собрать конвейер")
	}

	logger.Info().Dur("interval", cfg.Pipeline.CheckInterval).Msg("pipeline: запуск")
	if err := service.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("pipeline: журнал ссылок недоступен")
	}
	logger.Info().Msg("pipeline: остановлен")
}
