// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/thinkdocs"
	"github.com/poiesic/thinkdocs/config"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "thinkdocs",
		Usage:     "Document ingestion pipeline: extract, chunk, embed and search files",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load settings from these .env files instead of ./.env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides THINKDOCS_DATA_DIR)",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "PostgreSQL connection URL (overrides THINKDOCS_DATABASE_URL)",
			},
			&cli.StringFlag{
				Name:  "embed-provider",
				Usage: "Encoder backend: openai, gemini or mock",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.IntFlag{
				Name:  "embedding-dim",
				Usage: "Embedding vector dimension",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "Record files as processing documents without running the pipeline",
				ArgsUsage: "FILE|s3://BUCKET/KEY...",
				Action:    registerCommand,
				Flags:     []cli.Flag{ownerFlag()},
			},
			{
				Name:      "process",
				Usage:     "Run the pipeline for registered documents",
				ArgsUsage: "DOCUMENT_ID...",
				Action:    processCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Register and process files concurrently",
				ArgsUsage: "FILE|s3://BUCKET/KEY...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Number of documents processed at once",
						EnvVars: []string{"THINKDOCS_WORKERS"},
						Value:   2,
					},
					&cli.BoolFlag{
						Name:  "keep-input",
						Usage: "Leave the staged copies in the staging directory after processing",
					},
				},
			},
			{
				Name:   "sweep",
				Usage:  "Fail documents and jobs stuck in processing",
				Action: sweepCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "stale-after",
						Usage: "Processing age after which a document is stale (overrides THINKDOCS_STALE_AFTER)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep sweeping every THINKDOCS_SWEEP_INTERVAL until interrupted",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute the embeddings of every completed document",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.StringSliceFlag{
						Name:  "document",
						Usage: "Only reembed these document IDs",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find chunks semantically similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Only return chunks owned by this id",
						EnvVars:  []string{"THINKDOCS_OWNER"},
						Required: true,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of hits",
						Value:   10,
					},
				},
			},
			{
				Name:      "chunks",
				Usage:     "List the stored chunks of a document",
				ArgsUsage: "DOCUMENT_ID",
				Action:    chunksCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "preview",
						Usage: "Characters of content to show per chunk",
						Value: 60,
					},
				},
			},
			{
				Name:      "jobs",
				Usage:     "List the processing jobs of a document",
				ArgsUsage: "DOCUMENT_ID",
				Action:    jobsCommand,
			},
		},
	}
}

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"o"},
		Usage:    "Owner id recorded on the documents",
		EnvVars:  []string{"THINKDOCS_OWNER"},
		Required: true,
	}
}

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("%w: must be one of debug, info, warn, error", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	cfg := config.FromEnv()

	if c.IsSet("db") {
		cfg.DataDir = c.String("db")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("embed-provider") {
		cfg.AI.Provider = c.String("embed-provider")
	}
	if c.IsSet("embedding-host") {
		cfg.AI.EmbeddingHost = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("embedding-dim") {
		cfg.AI.Dimension = c.Int("embedding-dim")
	}
	cfg.LogLevel = c.String("log-level")
	return cfg, nil
}

func openSystem(c *cli.Context, adjust func(*config.Config)) (*thinkdocs.System, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	sys, err := thinkdocs.Open(c.Context, cfg, thinkdocs.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open system: %w", err)
	}
	return sys, nil
}
