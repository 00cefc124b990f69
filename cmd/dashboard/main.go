package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"automag/internal/adapters/dashboard"
	"automag/internal/app"
	"automag/internal/infra/config"
	httpinfra "automag/internal/infra/http"
	applog "automag/internal/infra/log"
	"automag/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logs := applog.NewRingBuffer(cfg.Dashboard.LogLines)
	logger := applog.NewLogger(cfg.AppEnv, logs)

	if cfg.Dashboard.AccessKey == "" || cfg.Dashboard.SecretKey == "" {
		logger.Fatal().Msg("dashboard: не заданы DASHBOARD_ACCESS_KEY и DASHBOARD_SECRET_KEY")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("dashboard: не удалось подключить хранилища")
	}
	defer storage.Close()

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	handler := dashboard.NewHandler(
		storage.Materials,
		storage.Ledger,
		logs,
		httpinfra.NewSession(cfg.Dashboard.SecretKey, 12*time.Hour),
		cfg.Dashboard.AccessKey,
		cfg.Dashboard.SecretKey,
		logger.With().Str("component", "dashboard").Logger(),
	)
	handler.Register(server.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("dashboard: ошибка остановки сервера")
		}
	}()

	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("dashboard: сервер остановлен с ошибкой")
	}
	logger.Info().Msg("dashboard: остановлен")
}
