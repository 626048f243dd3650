package indexing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"it": true, "be": true, "with": true, "from": true, "that": true,
	"le": true, "la": true, "les": true, "de": true, "des": true,
	"du": true, "et": true, "un": true, "une": true, "en": true,
}

// Normalize lowercases text and folds accents
// Example: "Éditeur, IDE" -> "editeur, ide"
func Normalize(text string) string {
	// Transformers keep state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// Tokenize splits normalized text into letter/digit runs
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FilterStopWords drops common English and French stop words.
// If every token is a stop word the input is returned unchanged.
func FilterStopWords(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !stopWords[token] {
			kept = append(kept, token)
		}
	}
	if len(kept) == 0 {
		return tokens
	}
	return kept
}

// TokenSet returns the distinct tokens of text
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
