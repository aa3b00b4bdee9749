package ingestion

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/poiesic/protrieve/core"
)

var (
	goID       = regexp.MustCompile(`^GO:\d+`)
	definition = regexp.MustCompile(`^"(.+?)" \[`)
)

// ReadOBO calls fn for every [Term] stanza with a GO identifier.
// Repeated is_a values are joined with ", ". Other stanza types are skipped.
func ReadOBO(ctx context.Context, r io.Reader, fn func(core.GOTerm) error) error {
	sc := newScanner(r)

	var (
		inTerm  bool
		term    core.GOTerm
		parents []string
	)
	flush := func() error {
		defer func() {
			term = core.GOTerm{}
			parents = nil
		}()
		if !inTerm || term.ID == "" {
			return nil
		}
		term.IsA = strings.Join(parents, ", ")
		return fn(term)
	}

	for line := 1; sc.Scan(); line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
			if err := flush(); err != nil {
				return err
			}
			inTerm = text == "[Term]"
			continue
		}
		if !inTerm {
			continue
		}

		tag, value, ok := strings.Cut(text, ": ")
		if !ok {
			continue
		}
		switch tag {
		case "id":
			if id := goID.FindString(value); id != "" && term.ID == "" {
				term.ID = id
			}
		case "name":
			term.Name = joinValue(term.Name, value)
		case "namespace":
			term.Namespace = joinValue(term.Namespace, value)
		case "def":
			if m := definition.FindStringSubmatch(value); m != nil {
				term.Definition = joinValue(term.Definition, m[1])
			}
		case "is_a":
			if id := goID.FindString(value); id != "" {
				parents = append(parents, id)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read obo: %w", err)
	}
	return flush()
}

func joinValue(existing, value string) string {
	if existing == "" {
		return value
	}
	return existing + ", " + value
}
