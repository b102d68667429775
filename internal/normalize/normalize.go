package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMaxLength bounds normalized keys so the frequency table cannot grow
// unbounded on pathological input.
const DefaultMaxLength = 256

var lower = cases.Lower(language.Und)

// Normalize canonicalizes raw query text for deduplication: case folding,
// whitespace collapsing, trailing punctuation stripping and length bounding.
// It is deterministic and idempotent. Fuzzy matching (stemming, typo
// tolerance) is intentionally not attempted.
func Normalize(text string) string {
	return WithLimit(text, DefaultMaxLength)
}

// WithLimit is Normalize with an explicit maximum length in runes.
func WithLimit(text string, maxLen int) string {
	folded := lower.String(text)

	// Collapse all interior whitespace runs to single spaces.
	collapsed := strings.Join(strings.Fields(folded), " ")
	trimmed := stripTrailing(collapsed)

	if maxLen > 0 {
		runes := []rune(trimmed)
		if len(runes) > maxLen {
			// Re-strip after the cut so truncation cannot expose a trailing
			// punctuation run and break idempotence.
			trimmed = stripTrailing(string(runes[:maxLen]))
		}
	}

	return trimmed
}

func stripTrailing(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
