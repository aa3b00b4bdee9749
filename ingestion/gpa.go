package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/protrieve/core"
)

// excludedEvidence lists the evidence codes of electronically inferred
// annotations, per the GAF to ECO mapping.
var excludedEvidence = map[string]bool{
	"ECO:0000501": true,
	"ECO:0000256": true,
	"ECO:0007322": true,
	"ECO:0000265": true,
	"ECO:0000249": true,
	"ECO:000036":  true,
}

// IsExcludedEvidence reports whether annotations with the evidence code are
// dropped on load.
func IsExcludedEvidence(code string) bool {
	return excludedEvidence[code]
}

// ReadGPA calls fn for every usable annotation row of a GPA file.
// Comment lines start with '!'. Rows with six or fewer tab-separated columns
// and rows with an excluded evidence code are skipped.
func ReadGPA(ctx context.Context, r io.Reader, fn func(core.Annotation) error) error {
	sc := newScanner(r)
	for line := 1; sc.Scan(); line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := sc.Text()
		if strings.HasPrefix(text, "!") {
			continue
		}
		cols := strings.Split(strings.TrimSpace(text), "\t")
		if len(cols) <= 6 || excludedEvidence[cols[5]] {
			continue
		}
		a := core.Annotation{ProteinID: cols[1], GOID: cols[3], EvidenceCode: cols[5]}
		if a.ProteinID == "" || a.GOID == "" {
			continue
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read gpa: %w", err)
	}
	return nil
}
