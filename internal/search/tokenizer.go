package search

import (
	"strings"
	"unicode"
)

// stopwords dropped during keyword tokenization. Kept small on purpose:
// over-aggressive stopword lists hurt short conversational queries.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "he": {}, "her": {}, "his": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "its": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "she": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// tokenize splits text into lowercase keyword tokens: punctuation is
// stripped, stopwords are dropped, and duplicates are removed. CJK has
// no word boundaries, so each CJK code point becomes its own token; a
// short query then still matches a longer phrase containing it.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		if _, stop := stopwords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		switch {
		case isCJKChar(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	// Deduplicate preserving order
	seen := make(map[string]struct{}, len(tokens))
	unique := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	return unique
}

// isCJKChar checks if a rune is a CJK character.
func isCJKChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3040 && r <= 0x309F) || // Hiragana
		(r >= 0x30A0 && r <= 0x30FF) // Katakana
}
