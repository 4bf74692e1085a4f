package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/utafrali/listing-search/internal/app"
	"github.com/utafrali/listing-search/internal/config"
	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/pkg/logger"
)

// withComponents loads configuration from the environment, builds the service
// graph and runs fn against it.
func withComponents(ctx context.Context, c *cli.Command, fn func(*app.Components, *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(cfg.ServiceName+"-ctl", c.String("log-level"), os.Stderr)

	components, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Warn("close components", slog.String("error", err.Error()))
		}
	}()
	return fn(components, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArg(c *cli.Command, name string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", cli.Exit(fmt.Sprintf("missing <%s> argument", name), 2)
	}
	return arg, nil
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Manage the search index",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create the index if it does not exist",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withComponents(ctx, c, func(comp *app.Components, log *slog.Logger) error {
						if err := comp.Schema.EnsureIndex(ctx); err != nil {
							return fmt.Errorf("create index: %w", err)
						}
						log.Info("index ready")
						return nil
					})
				},
			},
			{
				Name:  "drop",
				Usage: "Delete the index and every document in it",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withComponents(ctx, c, func(comp *app.Components, log *slog.Logger) error {
						if err := comp.Schema.DropIndex(ctx); err != nil {
							return fmt.Errorf("drop index: %w", err)
						}
						log.Info("index dropped")
						return nil
					})
				},
			},
			{
				Name:  "stats",
				Usage: "Show whether the index exists and its document count",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withComponents(ctx, c, func(comp *app.Components, _ *slog.Logger) error {
						stats, err := comp.Schema.Stats(ctx)
						if err != nil {
							return err
						}
						return printJSON(stats)
					})
				},
			},
		},
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the index from the listing database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "Drop and recreate the index first",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withComponents(ctx, c, func(comp *app.Components, log *slog.Logger) error {
				total, err := comp.Indexer.ReindexAll(ctx, c.Bool("fresh"))
				if err != nil {
					return fmt.Errorf("reindex after %d documents: %w", total, err)
				}
				log.Info("reindex completed", slog.Int("indexed", total))
				return printJSON(map[string]any{"indexed": total, "fresh": c.Bool("fresh")})
			})
		},
	}
}

func indexOneCommand() *cli.Command {
	return &cli.Command{
		Name:      "index-one",
		Usage:     "Sync a single listing into the index",
		ArgsUsage: "<listing-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := requireArg(c, "listing-id")
			if err != nil {
				return err
			}
			return withComponents(ctx, c, func(comp *app.Components, log *slog.Logger) error {
				if err := comp.Indexer.IndexOne(ctx, id); err != nil {
					return fmt.Errorf("index listing %s: %w", id, err)
				}
				log.Info("listing synced", slog.String("listing_id", id))
				return nil
			})
		},
	}
}

func removeOneCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove-one",
		Usage:     "Remove a single listing from the index",
		ArgsUsage: "<listing-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id, err := requireArg(c, "listing-id")
			if err != nil {
				return err
			}
			return withComponents(ctx, c, func(comp *app.Components, log *slog.Logger) error {
				if err := comp.Indexer.RemoveOne(ctx, id); err != nil {
					return fmt.Errorf("remove listing %s: %w", id, err)
				}
				log.Info("listing removed", slog.String("listing_id", id))
				return nil
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run a search and print the result as JSON",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sort", Usage: "Sort option", Value: domain.SortRelevance},
			&cli.StringFlag{Name: "category", Usage: "Category slug filter"},
			&cli.StringFlag{Name: "brand", Usage: "Brand slug filter"},
			&cli.StringFlag{Name: "country", Usage: "ISO country code filter"},
			&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
			&cli.IntFlag{Name: "page-size", Usage: "Hits per page", Value: 20},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			params := domain.SearchParams{
				Query:        strings.Join(c.Args().Slice(), " "),
				CategorySlug: c.String("category"),
				BrandSlug:    c.String("brand"),
				CountryCode:  c.String("country"),
				Sort:         c.String("sort"),
				Page:         c.Int("page"),
				PageSize:     c.Int("page-size"),
			}
			return withComponents(ctx, c, func(comp *app.Components, _ *slog.Logger) error {
				result, err := comp.Search.Search(ctx, params)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func suggestCommand() *cli.Command {
	return &cli.Command{
		Name:      "suggest",
		Usage:     "Print title suggestions for a prefix",
		ArgsUsage: "<prefix>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Maximum suggestions", Value: 10},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			prefix, err := requireArg(c, "prefix")
			if err != nil {
				return err
			}
			return withComponents(ctx, c, func(comp *app.Components, _ *slog.Logger) error {
				titles, err := comp.Search.Suggest(ctx, prefix, c.Int("limit"))
				if err != nil {
					return err
				}
				return printJSON(titles)
			})
		},
	}
}
