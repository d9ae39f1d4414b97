package usecase

import (
	"regexp"
	"strings"

	"github.com/ozonscraper/backend/internal/domain"
)

// Collapses any whitespace run, including NBSP and tabs, into one space
var queryWhitespacePattern = regexp.MustCompile(`[\s\x{00A0}\x{2009}\x{202F}]+`)

// SearchQuery is a normalized, non-blank search query.
// The zero value is not valid; build one with NewSearchQuery.
type SearchQuery struct {
	text string
}

// NewSearchQuery trims raw and collapses internal whitespace.
// Returns domain.ErrInvalidQuery when nothing is left.
func NewSearchQuery(raw string) (SearchQuery, error) {
	cleaned := queryWhitespacePattern.ReplaceAllString(raw, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return SearchQuery{}, domain.ErrInvalidQuery
	}
	return SearchQuery{text: cleaned}, nil
}

// String returns the normalized query text
func (q SearchQuery) String() string {
	return q.text
}

// IsZero reports whether q was not built by NewSearchQuery
func (q SearchQuery) IsZero() bool {
	return q.text == ""
}
