// Package parser turns a free-text query into the lower-cased words a trix
// index is searched with.
package parser

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// Query is a parsed search.
type Query struct {
	Raw   string
	Words []string
}

// Parse normalises query to NFKC, lower-cases it and splits it into words
// with the same character classes the index builder uses, so punctuation
// around a word never stops it matching. Repeated words are kept: they
// change the ranking.
func Parse(query string, maxWords int) (*Query, error) {
	q := &Query{Raw: query}
	// A Caser is stateful, so each call gets its own.
	normalized := cases.Lower(language.Und).String(norm.NFKC.String(query))
	for _, field := range strings.Fields(normalized) {
		q.Words = append(q.Words, trix.Words(field)...)
	}
	if len(q.Words) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "query %q has no searchable words", query)
	}
	if maxWords > 0 && len(q.Words) > maxWords {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"query has %d words, at most %d allowed", len(q.Words), maxWords)
	}
	return q, nil
}

// Key is a canonical form of the query, used for caching and analytics.
func (q *Query) Key() string {
	return strings.Join(q.Words, " ")
}
