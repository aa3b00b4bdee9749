package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/protrieve/core"
)

// ReadFlatFiles calls fn for every record of a UniProt flat file. Records end
// at a "//" line. The sequence section (the SQ line and the indented residue
// lines after it) is dropped, and the protein id is taken from the first AC
// line when present.
func ReadFlatFiles(ctx context.Context, r io.Reader, fn func(core.FlatFile) error) error {
	sc := newScanner(r)

	var lines []string
	flush := func() error {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		if content == "" {
			return nil
		}
		f := core.FlatFile{Content: content}
		f.ProteinID, _ = core.AccessionFromFlatFile(content)
		return fn(f)
	}

	for n := 1; sc.Scan(); n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.TrimSpace(line) == "//":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "SQ"), strings.HasPrefix(line, " "):
		default:
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read flat files: %w", err)
	}
	return flush()
}
