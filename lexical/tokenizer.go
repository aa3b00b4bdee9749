package lexical

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing
		down during each few for from further had has have having he her here
		hers herself him himself his how i if in into is it its itself just me
		more most my myself no nor not of off on once only or other our ours
		ourselves out over own same she should so some such than that the their
		theirs them themselves then there these they this those through to too
		under until up very was we were what when where which while who whom why
		will with would you your yours yourself yourselves`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w is an English stop word. w must be lower case.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize lower-cases text, splits on anything that is not a letter or a
// digit and drops stop words. No stemming is applied.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !IsStopWord(f) {
			out = append(out, f)
		}
	}
	return out
}

// TermID maps a token to its sparse index.
func TermID(token string) uint32 {
	return uint32(xxhash.Sum64String(token))
}
