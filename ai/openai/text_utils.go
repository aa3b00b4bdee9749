package openai

import "strings"

// DefaultMaxChars caps the text sent to the embedding model per document.
const DefaultMaxChars = 8000

// prepareText removes the residue block of a UniProt flat-file record,
// collapses whitespace and truncates the result to maxChars bytes on a rune
// boundary. Plain text without an SQ section is only collapsed and truncated.
func prepareText(s string, maxChars int) string {
	var b strings.Builder
	b.Grow(min(len(s), maxChars))
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "SQ   ") {
			break
		}
		for _, field := range strings.Fields(line) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(field)
		}
	}
	out := b.String()
	if maxChars <= 0 || len(out) <= maxChars {
		return out
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(out[cut]) {
		cut--
	}
	return out[:cut]
}

// isRuneStart returns true if b begins a UTF-8 encoded rune.
func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
