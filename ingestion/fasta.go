package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// maxLineLength bounds a single input line. Titin fits comfortably.
const maxLineLength = 16 << 20

// FASTARecord is one entry of a FASTA file.
type FASTARecord struct {
	// Header is the definition line without the leading '>'.
	Header   string
	Residues string
}

// ID returns the accession of a UniProt header, or the first header token
// for other headers.
func (r FASTARecord) ID() string {
	token, _, _ := strings.Cut(r.Header, " ")
	parts := strings.Split(token, "|")
	if len(parts) >= 3 && (parts[0] == "sp" || parts[0] == "tr") {
		return parts[1]
	}
	return token
}

// ReadFASTA calls fn for every record in r, in file order.
// Blank lines and ';' comment lines are ignored. Iteration stops at the first
// error from fn.
func ReadFASTA(ctx context.Context, r io.Reader, fn func(FASTARecord) error) error {
	sc := newScanner(r)

	var (
		current *FASTARecord
		seq     strings.Builder
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		rec := *current
		rec.Residues = seq.String()
		current = nil
		seq.Reset()
		return fn(rec)
	}

	for line := 1; sc.Scan(); line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "", strings.HasPrefix(text, ";"):
		case strings.HasPrefix(text, ">"):
			if err := flush(); err != nil {
				return err
			}
			current = &FASTARecord{Header: strings.TrimSpace(text[1:])}
		default:
			if current == nil {
				return fmt.Errorf("%w: line %d: sequence data before first header", ErrMalformedFASTA, line)
			}
			seq.WriteString(text)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read fasta: %w", err)
	}
	return flush()
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return sc
}
