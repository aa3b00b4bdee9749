package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/protrieve/core"
)

var (
	uniprotHeader = regexp.MustCompile(`^(?:sp|tr)\|([^|]+)\|(\S+)(?:\s+(.*))?$`)
	headerField   = regexp.MustCompile(`\s(OS|OX|GN|PE|SV)=`)
)

// ParseUniProtHeader parses a header of the form
//
//	sp|P69905|HBA_HUMAN Hemoglobin subunit alpha OS=Homo sapiens OX=9606 GN=HBA1 PE=1 SV=2
//
// The leading '>' is optional. Every field after the entry name is optional.
func ParseUniProtHeader(header string) (core.ProteinRecord, error) {
	header = strings.TrimPrefix(strings.TrimSpace(header), ">")
	m := uniprotHeader.FindStringSubmatch(header)
	if m == nil {
		return core.ProteinRecord{}, fmt.Errorf("%w: %q", ErrMalformedHeader, header)
	}
	rec := core.ProteinRecord{ProteinID: m[1], ShortName: m[2]}

	rest := " " + m[3]
	locs := headerField.FindAllStringSubmatchIndex(rest, -1)
	descEnd := len(rest)
	if len(locs) > 0 {
		descEnd = locs[0][0]
	}
	rec.Name = strings.TrimSpace(rest[:descEnd])

	for i, loc := range locs {
		end := len(rest)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		value := strings.TrimSpace(rest[loc[1]:end])
		switch rest[loc[2]:loc[3]] {
		case "OS":
			rec.Organism = value
		case "OX":
			rec.TaxonID = firstField(value)
		case "GN":
			rec.GeneName = value
		case "PE":
			rec.Evidence = firstField(value)
		case "SV":
			rec.Version = firstField(value)
		}
	}
	return rec, nil
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
