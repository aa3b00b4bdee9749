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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/protrieve"
	"github.com/poiesic/protrieve/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	fileFlag := func(usage string) cli.Flag {
		return &cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    usage + " (- for stdin)",
			Required: true,
		}
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Write results as JSON instead of a table",
	}

	return &cli.App{
		Name:  "protrieve",
		Usage: "Protein sequence retrieval and evidence fusion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML, TOML or JSON configuration file",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "Metadata database (sqlite path or postgres:// URL), overrides storage.dsn",
			},
			&cli.StringFlag{
				Name:  "badger-path",
				Usage: "Vector store directory, overrides storage.badger_path",
			},
			&cli.StringFlag{
				Name:  "index-path",
				Usage: "ANN index file, overrides ann.path",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "load-fasta",
				Usage:  "Load protein metadata from UniProt FASTA headers",
				Action: loadFASTACommand,
				Flags:  []cli.Flag{fileFlag("FASTA file")},
			},
			{
				Name:   "load-obo",
				Usage:  "Load GO term definitions from an OBO file",
				Action: loadOBOCommand,
				Flags:  []cli.Flag{fileFlag("OBO file")},
			},
			{
				Name:   "load-gpa",
				Usage:  "Load GO annotations from a GPA file",
				Action: loadGPACommand,
				Flags:  []cli.Flag{fileFlag("GPA file")},
			},
			{
				Name:   "load-flatfiles",
				Usage:  "Load UniProt flat-file records as searchable documents",
				Action: loadFlatFilesCommand,
				Flags:  []cli.Flag{fileFlag("UniProt flat file")},
			},
			{
				Name:   "embed-documents",
				Usage:  "Embed documents added since the last run and rebuild the lexical cache",
				Action: embedDocumentsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent embedding workers (0 for half the CPUs)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents per embedding request",
						Value: 16,
					},
				},
			},
			{
				Name:   "build-index",
				Usage:  "Embed every sequence of a FASTA file and rebuild the ANN index",
				Action: buildIndexCommand,
				Flags: []cli.Flag{
					fileFlag("FASTA file"),
					&cli.IntFlag{
						Name:  "total",
						Usage: "Expected number of sequences, for progress reporting",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of sequences to embed in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N sequences",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed batches",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Embed the sequences of a FASTA file and write them as JSON lines",
				Action: embedCommand,
				Flags: []cli.Flag{
					fileFlag("FASTA file"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (- for stdout)",
						Value:   "-",
					},
					&cli.BoolFlag{
						Name:  "per-residue",
						Usage: "Write per-residue matrices instead of per-protein vectors",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of sequences per embedding pass",
						Value: 100,
					},
				},
			},
			{
				Name:   "search-sequence",
				Usage:  "Find proteins similar to a query sequence",
				Action: searchSequenceCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Query sequence, optionally FASTA formatted",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the query sequence from a file (- for stdin)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity, defaults to thresholds.search",
					},
					&cli.BoolFlag{
						Name:  "enrich",
						Usage: "Run GO enrichment over precise hits",
						Value: true,
					},
					jsonFlag,
				},
			},
			{
				Name:   "search-text",
				Usage:  "Search protein documents with fused dense, lexical and full-text retrieval",
				Action: searchTextCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Natural language query",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results, defaults to fusion.top_k",
					},
					jsonFlag,
				},
			},
			{
				Name:   "enrich",
				Usage:  "Find GO terms over-represented in a set of proteins",
				Action: enrichCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "ids",
						Usage: "Comma separated protein accessions",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "File with one accession per line (- for stdin)",
					},
					jsonFlag,
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dsn := c.String("dsn"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if path := c.String("badger-path"); path != "" {
		cfg.Storage.BadgerPath = path
	}
	if path := c.String("index-path"); path != "" {
		cfg.ANN.Path = path
	}
	return cfg, cfg.Validate()
}

func openDatabase(c *cli.Context) (*protrieve.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := protrieve.NewDatabase(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openInput opens path for reading; "-" reads stdin.
func openInput(c *cli.Context, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(c.App.Reader), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
