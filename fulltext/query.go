package fulltext

import (
	"regexp"
	"strings"
)

var (
	separators = regexp.MustCompile(`[.,;!?()\[\]]`)
	andWord    = regexp.MustCompile(`\band\b`)
	word       = regexp.MustCompile(`\w+`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		what which who are is the of in on to there those this these and
		information a an do does can could should would please just only also
		even still yet already however how when where why at by for from with
		about as into like through over before after above below between but
		or nor so if than because he she it they we you him her them us your
		my our was were be been being has have had will shall may might must
		let`) {
		stopWords[w] = struct{}{}
	}
}

// synonymKeys fixes the expansion order.
var synonymKeys = []string{"cofactor", "pathway", "activity", "catalytic", "protein"}

var synonyms = map[string][]string{
	"cofactor":  {"coenzyme", "co-factor", "co enzyme"},
	"pathway":   {"biopathway", "biosynthesis", "route"},
	"activity":  {"function", "activity", "action"},
	"catalytic": {"enzymatic", "enzyme-driven"},
	"protein":   {"polypeptide", "gene product"},
}

// SubQuery is one keyword group cut from a query.
type SubQuery struct {
	Base       string
	Expansions []string // Base first, then synonyms, deduplicated and sanitized
	Weight     float64
}

// ParseQuery splits query into weighted sub-queries. It returns nil when no
// keyword survives stop-word removal.
func ParseQuery(query string) []SubQuery {
	query = separators.ReplaceAllString(strings.ToLower(query), " and ")

	var out []SubQuery
	for _, part := range andWord.Split(query, -1) {
		var keywords []string
		for _, w := range word.FindAllString(part, -1) {
			if _, stop := stopWords[w]; !stop {
				keywords = append(keywords, w)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		base := strings.Join(keywords, " ")
		out = append(out, SubQuery{
			Base:       base,
			Expansions: expand(base),
			Weight:     1 + 1/float64(len(keywords)),
		})
	}
	return out
}

// expand returns base plus the synonyms of every key contained in base.
func expand(base string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = sanitize(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(base)
	for _, key := range synonymKeys {
		if strings.Contains(base, key) {
			for _, syn := range synonyms[key] {
				add(syn)
			}
		}
	}
	return out
}

// sanitize replaces characters the match syntax treats specially.
func sanitize(term string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(term)
}
