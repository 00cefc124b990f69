package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"automag/internal/app"
	"automag/internal/domain"
	"automag/internal/infra/config"
)

type materialLine struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	Price         float64   `json:"price"`
	Featured      bool      `json:"featured"`
	ViewCount     int       `json:"view_count"`
	PurchaseCount int       `json:"purchase_count"`
	Link          string    `json:"link"`
	CreatedAt     time.Time `json:"created_at"`
}

func printMaterials(w io.Writer, materials []domain.StoredMaterial) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range materials {
		line := materialLine{
			ID:            m.ID,
			Title:         m.Title,
			Category:      m.Category,
			Tags:          m.Tags,
			Price:         m.Price,
			Featured:      m.IsFeatured,
			ViewCount:     m.ViewCount,
			PurchaseCount: m.PurchaseCount,
			Link:          m.OriginalLink,
			CreatedAt:     m.CreatedAt,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search published materials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := searchFilter(cmd)
			if err != nil {
				return err
			}
			return withStorage(cmd, func(ctx context.Context, _ config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				found, err := s.Materials.Search(ctx, filter)
				if err != nil {
					return err
				}
				return printMaterials(cmd.OutOrStdout(), found)
			})
		},
	}
	cmd.Flags().String("query", "", "Text to look for in title and description")
	cmd.Flags().String("category", "", "Exact category")
	cmd.Flags().StringSlice("tag", nil, "Required tag (repeatable)")
	cmd.Flags().Uint64("limit", 20, "Maximum number of results")
	return cmd
}

func searchFilter(cmd *cobra.Command) (domain.SearchFilter, error) {
	var (
		filter domain.SearchFilter
		err    error
	)
	if filter.Query, err = cmd.Flags().GetString("query"); err != nil {
		return filter, err
	}
	if filter.Category, err = cmd.Flags().GetString("category"); err != nil {
		return filter, err
	}
	if filter.Tags, err = cmd.Flags().GetStringSlice("tag"); err != nil {
		return filter, err
	}
	if filter.Limit, err = cmd.Flags().GetUint64("limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func listCmd(name, short string, def uint64) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetUint64("limit")
			if err != nil {
				return err
			}
			return withStorage(cmd, func(ctx context.Context, _ config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				var (
					found []domain.StoredMaterial
					err   error
				)
				switch name {
				case "featured":
					found, err = s.Materials.Featured(ctx, limit)
				case "popular":
					found, err = s.Materials.Popular(ctx, limit)
				default:
					found, err = s.Materials.Recent(ctx, limit)
				}
				if err != nil {
					return err
				}
				return printMaterials(cmd.OutOrStdout(), found)
			})
		},
	}
	cmd.Flags().Uint64("limit", def, "Maximum number of results")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Increment view and purchase counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			view, _ := cmd.Flags().GetBool("view")
			purchase, _ := cmd.Flags().GetBool("purchase")
			return withStorage(cmd, func(ctx context.Context, _ config.AppConfig, _ zerolog.Logger, s *app.Storage) error {
				updated, err := s.Materials.IncrementStats(ctx, id, view, purchase)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated: %t\n", updated)
				return nil
			})
		},
	}
	cmd.Flags().Bool("view", false, "Increment view_count")
	cmd.Flags().Bool("purchase", false, "Increment purchase_count")
	return cmd
}
