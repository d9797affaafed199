package chat

import (
	"strings"
	"unicode"
)

// ExitPhrases recognizes messages that mean the user wants to end the session.
type ExitPhrases []string

// Match reports whether text, ignoring case and surrounding punctuation, is
// one of the phrases.
func (p ExitPhrases) Match(text string) bool {
	normalized := strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
	if normalized == "" {
		return false
	}
	for _, phrase := range p {
		if normalized == strings.ToLower(strings.TrimSpace(phrase)) {
			return true
		}
	}
	return false
}
