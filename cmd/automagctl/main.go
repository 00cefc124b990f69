package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"automag/internal/app"
	"automag/internal/infra/config"
	applog "automag/internal/infra/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "automagctl",
		Short:        "autoMag operator tool",
		Long:         "Runs the pipeline for a single URL and inspects stored materials, the URL ledger and archived model output.",
		SilenceUsage: true,
	}
	root.AddCommand(
		processCmd(),
		searchCmd(),
		listCmd("featured", "Show featured materials", 10),
		listCmd("popular", "Show the most viewed materials", 10),
		listCmd("recent", "Show recently published materials", 20),
		statsCmd(),
		ledgerCmd(),
		archiveCmd(),
		eventsCmd(),
	)
	return root
}

// withStorage загружает конфиг и открывает хранилища на время команды.
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, s *app.Storage) error) error {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "automagctl").Logger()
	ctx := cmd.Context()

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()
	return fn(ctx, cfg, logger, storage)
}
