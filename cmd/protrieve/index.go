package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bytedance/sonic"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/embed"
	"github.com/poiesic/protrieve/ingestion"
	"github.com/poiesic/protrieve/reindex"
	"github.com/urfave/cli/v2"
)

func embedDocumentsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []ingestion.Option{ingestion.WithBatchSize(c.Int("batch-size"))}
	if n := c.Int("pool-size"); n > 0 {
		opts = append(opts, ingestion.WithPoolSize(n))
	}
	pipeline, err := db.NewDocumentPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create document pipeline: %w", err)
	}
	defer pipeline.Release()

	stats, err := pipeline.Run(c.Context)
	if err != nil {
		return fmt.Errorf("document embedding failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Embedded %d documents (last id %d)\n", stats.Documents, stats.LastID)
	return nil
}

func buildIndexCommand(c *cli.Context) error {
	rc := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if rc.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if rc.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if rc.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	in, err := openInput(c, c.String("file"))
	if err != nil {
		return err
	}
	defer in.Close()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	defaults := db.IndexBuilderConfig()
	rc.Trees = defaults.Trees
	rc.LeafSize = defaults.LeafSize
	rc.Seed = defaults.Seed

	builder, err := db.NewIndexBuilder(rc, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create index builder: %w", err)
	}

	cfg := db.Config()
	fmt.Fprintf(os.Stderr, "Index: %s (%s backend)\n", cfg.ANN.Path, cfg.ANN.Backend)
	fmt.Fprintf(os.Stderr, "Encoder: %s (%s)\n", cfg.AI.EncoderHost, cfg.AI.EncoderModel)
	fmt.Fprintln(os.Stderr)

	if _, err := db.RebuildIndex(c.Context, builder, in, c.Int("total")); err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	return nil
}

// embeddingLine is one line of embed command output.
type embeddingLine struct {
	ID     string    `json:"id"`
	Length int       `json:"length"`
	Shape  []int     `json:"shape"`
	Values []float32 `json:"values"`
}

func embedCommand(c *cli.Context) error {
	in, err := openInput(c, c.String("file"))
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = c.App.Writer
	if path := c.String("output"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	mode := db.Config().Embed.Mode()
	if c.Bool("per-residue") {
		mode = embed.PerResidue
	}
	generator := db.Generator()

	written := 0
	it := reindex.NewRecordIterator(c.Int("batch-size"))
	err = it.ForEach(c.Context, in, func(records []ingestion.FASTARecord) error {
		sequences := make(map[string]string, len(records))
		order := make([]string, 0, len(records))
		for _, rec := range records {
			id := rec.ID()
			if err := core.ValidateSequence(&core.Sequence{ID: id, Residues: rec.Residues}); err != nil {
				slog.Warn("skipping invalid sequence", "header", rec.Header, "err", err)
				continue
			}
			if _, dup := sequences[id]; dup {
				slog.Warn("skipping duplicate sequence id", "id", id)
				continue
			}
			sequences[id] = rec.Residues
			order = append(order, id)
		}

		res, err := generator.Embed(c.Context, sequences, mode)
		if err != nil {
			return err
		}
		for _, id := range order {
			e, err := res.Vector(id)
			if err != nil {
				return err
			}
			line, err := sonic.ConfigStd.Marshal(embeddingLine{
				ID:     id,
				Length: res.Sizes[id].Length,
				Shape:  e.Shape,
				Values: e.Values,
			})
			if err != nil {
				return err
			}
			w.Write(line)
			w.WriteByte('\n')
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d %s embeddings\n", written, mode)
	return nil
}
