package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/protrieve/ingestion"
	"github.com/urfave/cli/v2"
)

type loadFunc func(l *ingestion.Loader, ctx context.Context, r io.Reader) (ingestion.LoadStats, error)

func loadCommand(kind string, load loadFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
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

		stats, err := load(db.NewLoader(), c.Context, in)
		if err != nil {
			return fmt.Errorf("loading %s failed: %w", kind, err)
		}
		fmt.Fprintf(os.Stderr, "Loaded %s: %d read, %d stored, %d skipped\n", kind, stats.Read, stats.Stored, stats.Skipped)
		return nil
	}
}

var (
	loadFASTACommand     = loadCommand("proteins", (*ingestion.Loader).LoadFASTA)
	loadOBOCommand       = loadCommand("GO terms", (*ingestion.Loader).LoadOBO)
	loadGPACommand       = loadCommand("annotations", (*ingestion.Loader).LoadGPA)
	loadFlatFilesCommand = loadCommand("flat files", (*ingestion.Loader).LoadFlatFiles)
)
