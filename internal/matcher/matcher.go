// Package matcher ranks documentation fragments against a free-text query.
//
// Search is a pure function of (query, store): it only reads the store and
// is safe to call concurrently. Matching is case- and accent-insensitive.
//
// # Ranking
//
// Each fragment is reduced to a set of match Signals, compared in this order
// of precedence (a higher signal always wins over any amount of lower ones):
//
//	exact title match
//	distinct query tokens in the title
//	query contained in the title
//	distinct query tokens in the text
//	distinct query tokens in the page name
//	query contained in the text
//
// Fragments with no signal are not returned. Equal signals keep artifact order.
package matcher

import (
	"errors"
	"iter"
	"math"
	"slices"
	"strings"

	"github.com/docsearch/docsearch-mcp/internal/indexing"
)

// ErrNoStore is returned when searching without a successfully loaded store.
var ErrNoStore = errors.New("search index not loaded")

// Result is a ranked fragment
type Result struct {
	Fragment indexing.Fragment `json:"fragment"`
	Score    float64           `json:"score"`
	Position int               `json:"position"` // Index in the artifact
	Signals  Signals           `json:"-"`
}

// Signals are the match features of one fragment for one query
type Signals struct {
	ExactTitle     bool
	TitleTokens    int
	TitleSubstring bool
	TextTokens     int
	PageTokens     int
	TextSubstring  bool
}

// Zero reports whether the fragment did not match at all
func (s Signals) Zero() bool {
	return s == Signals{}
}

// Compare orders signals by precedence: negative when s ranks below o
func (s Signals) Compare(o Signals) int {
	if c := compareBool(s.ExactTitle, o.ExactTitle); c != 0 {
		return c
	}
	if c := s.TitleTokens - o.TitleTokens; c != 0 {
		return c
	}
	if c := compareBool(s.TitleSubstring, o.TitleSubstring); c != 0 {
		return c
	}
	if c := s.TextTokens - o.TextTokens; c != 0 {
		return c
	}
	if c := s.PageTokens - o.PageTokens; c != 0 {
		return c
	}
	return compareBool(s.TextSubstring, o.TextSubstring)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// Query is a normalized user query, reusable across fragments
type Query struct {
	phrase string   // normalized, whitespace-collapsed query
	tokens []string // distinct tokens, stop words removed when possible
}

// NewQuery normalizes raw for matching
func NewQuery(raw string) Query {
	phrase := collapse(indexing.Normalize(raw))

	tokens := indexing.FilterStopWords(indexing.Tokenize(raw))
	seen := make(map[string]bool, len(tokens))
	distinct := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !seen[token] {
			seen[token] = true
			distinct = append(distinct, token)
		}
	}

	return Query{phrase: phrase, tokens: distinct}
}

// Empty reports a blank query, which matches nothing
func (q Query) Empty() bool {
	return q.phrase == ""
}

// Tokens returns the distinct normalized query tokens
func (q Query) Tokens() []string {
	return slices.Clone(q.tokens)
}

// Match computes the signals of f for this query
func (q Query) Match(f indexing.Fragment) Signals {
	var s Signals
	if q.Empty() {
		return s
	}

	if f.Title != "" {
		title := collapse(indexing.Normalize(f.Title))
		s.ExactTitle = title == q.phrase
		s.TitleTokens = overlap(q.tokens, indexing.TokenSet(f.Title))
		s.TitleSubstring = strings.Contains(title, q.phrase)
	}

	if f.Text != "" {
		s.TextTokens = overlap(q.tokens, indexing.TokenSet(f.Text))
		s.TextSubstring = strings.Contains(collapse(indexing.Normalize(f.Text)), q.phrase)
	}

	s.PageTokens = overlap(q.tokens, indexing.TokenSet(f.Page))
	return s
}

// Score flattens signals into a number that orders the same way as Compare
// for this query. Token counts never exceed the query's token count, so each
// signal gets its own digit in base len(tokens)+1.
func (q Query) Score(s Signals) float64 {
	base := float64(max(len(q.tokens)+1, 2))
	digits := []float64{
		boolDigit(s.ExactTitle),
		float64(s.TitleTokens),
		boolDigit(s.TitleSubstring),
		float64(s.TextTokens),
		float64(s.PageTokens),
		boolDigit(s.TextSubstring),
	}

	var score float64
	for i, d := range digits {
		score += d * math.Pow(base, float64(len(digits)-1-i))
	}
	return score
}

func boolDigit(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Score returns the score of a single fragment for query
func Score(query string, f indexing.Fragment) float64 {
	q := NewQuery(query)
	return q.Score(q.Match(f))
}

// Search returns fragments matching query, highest ranked first.
// An empty or whitespace-only query, or a nil store, yields no results.
func Search(query string, store *indexing.Store) []Result {
	if store == nil {
		return []Result{}
	}
	return Rank(NewQuery(query), store, func(yield func(int) bool) {
		for i := range store.Len() {
			if !yield(i) {
				return
			}
		}
	})
}

// Rank scores the fragments of store at positions and orders them by signal
// precedence, then artifact position. Positions may arrive in any order.
func Rank(q Query, store *indexing.Store, positions iter.Seq[int]) []Result {
	results := make([]Result, 0)
	if store == nil || q.Empty() {
		return results
	}

	for i := range positions {
		fragment := store.At(i)
		signals := q.Match(fragment)
		if signals.Zero() {
			continue
		}
		results = append(results, Result{
			Fragment: fragment,
			Score:    q.Score(signals),
			Position: i,
			Signals:  signals,
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		if c := b.Signals.Compare(a.Signals); c != 0 {
			return c
		}
		return a.Position - b.Position
	})
	return results
}

// SearchStore is Search for callers that must refuse an unloaded store
func SearchStore(query string, store *indexing.Store) ([]Result, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	return Search(query, store), nil
}

// Limit truncates results to at most n entries; n <= 0 means no limit
func Limit(results []Result, n int) []Result {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func overlap(tokens []string, set map[string]struct{}) int {
	count := 0
	for _, token := range tokens {
		if _, ok := set[token]; ok {
			count++
		}
	}
	return count
}
