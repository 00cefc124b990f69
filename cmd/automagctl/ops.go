package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"automag/internal/app"
	"automag/internal/domain"
	"automag/internal/infra/config"
	"automag/internal/infra/queue"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <url>",
		Short: "Run the pipeline for one article URL and record it in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, s *app.Storage) error {
				service, err := app.NewPipeline(cfg, s, logger)
				if err != nil {
					return err
				}
				res := service.ProcessURL(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", res.Outcome)
				if res.MaterialID != 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "material: %d\n", res.MaterialID)
				}
				if res.Err != nil {
					return fmt.Errorf("%s: %w", domain.ErrorKind(res.Err), res.Err)
				}
				return nil
			})
		},
	}
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the processed URL ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(ctx context.Context, _ config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				urls, err := s.Ledger.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "processed: %d\n", len(urls))
				for _, u := range urls {
					fmt.Fprintln(out, u)
				}
				return nil
			})
		},
	}
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <url>",
		Short: "Print the archived raw model output for a URL",
		Long:  "Reads ARCHIVE_DIR. The pipeline must be stopped: the archive is opened exclusively.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(_ context.Context, _ config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				if s.Archive == nil {
					return errors.New("ARCHIVE_DIR is not set")
				}
				raw, err := s.Archive.Get(args[0])
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no archived output for %s", args[0])
				}
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Drain material events from the Redis list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			wait, _ := cmd.Flags().GetDuration("wait")
			return withStorage(cmd, func(ctx context.Context, cfg config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				if s.Redis == nil {
					return errors.New("REDIS_ADDR is not set")
				}
				events := queue.NewRedisPublisher(s.Redis, cfg.Queues.MaterialsRedisKey)
				ctx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				var printed []domain.StoredMaterial
				for i := 0; i < count; i++ {
					event, err := events.Pop(ctx)
					if errors.Is(err, context.DeadlineExceeded) {
						break
					}
					if err != nil {
						return err
					}
					printed = append(printed, domain.StoredMaterial{
						ID:           event.MaterialID,
						Title:        event.Title,
						Tags:         event.Tags,
						Price:        event.Price,
						IsFeatured:   event.Featured,
						OriginalLink: event.Link,
						CreatedAt:    event.PublishedAt,
					})
				}
				return printMaterials(cmd.OutOrStdout(), printed)
			})
		},
	}
	cmd.Flags().Int("count", 10, "Maximum number of events to read")
	cmd.Flags().Duration("wait", 5*time.Second, "How long to wait for new events")
	return cmd
}
