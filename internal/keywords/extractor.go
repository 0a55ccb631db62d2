// Package keywords turns a natural-language question into graph search terms.
package keywords

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Extractor is a local, dependency-free keyword extractor. The zero value is
// not usable; call New.
type Extractor struct {
	stopwords map[string]struct{}
	minLen    int
	maxTerms  int
}

type Option func(*Extractor)

// WithMaxTerms caps the number of keywords returned.
func WithMaxTerms(n int) Option {
	return func(e *Extractor) { e.maxTerms = n }
}

// WithStopwords adds extra words to ignore.
func WithStopwords(words ...string) Option {
	return func(e *Extractor) {
		for _, w := range words {
			e.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		stopwords: make(map[string]struct{}, len(defaultStopwords)),
		minLen:    2,
		maxTerms:  12,
	}
	for _, w := range defaultStopwords {
		e.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns space-separated keywords in question order. It never fails:
// when every token is filtered out the cleaned question itself is returned.
func (e *Extractor) Extract(_ context.Context, question string) string {
	folded := cases.Fold().String(norm.NFKC.String(question))
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, "-")
		if len([]rune(tok)) < e.minLen {
			continue
		}
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if e.maxTerms > 0 && len(out) == e.maxTerms {
			break
		}
	}
	if len(out) == 0 {
		return strings.Join(strings.Fields(folded), " ")
	}
	return strings.Join(out, " ")
}

var defaultStopwords = []string{
	"a", "about", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "been", "being", "between", "but", "by", "can", "could", "did", "do",
	"does", "doing", "explain", "for", "from", "give", "had", "has", "have",
	"how", "i", "if", "in", "into", "is", "it", "its", "know", "list", "me",
	"my", "of", "on", "or", "please", "should", "so", "some", "tell", "than",
	"that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "to", "us", "was", "we", "were", "what", "when", "where", "which",
	"who", "whom", "why", "will", "with", "would", "you", "your",
}
