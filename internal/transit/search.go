package transit

import (
	"strings"
)

// Canonicalize lowercases a string and unifies the two interchangeable
// spellings of "tai" (台/臺) used in Traditional Chinese place names. It must
// be applied to BOTH sides of every comparison; canonicalizing only one side
// silently drops legitimate matches.
func Canonicalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "台", "臺") // 台 -> 臺
}

// SplitQuery splits a raw query string on whitespace and commas into
// canonicalized search terms. An empty query yields no terms.
func SplitQuery(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		terms = append(terms, Canonicalize(f))
	}
	return terms
}

// MatchesTokens reports whether any term is a substring of any token.
// Terms are ORed; no terms means match everything. Tokens and terms are
// expected to be canonicalized already.
func MatchesTokens(tokens, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, term := range terms {
		for _, tok := range tokens {
			if strings.Contains(tok, term) {
				return true
			}
		}
	}
	return false
}

// appendToken canonicalizes s and appends it, skipping empties and the
// "Unknown" placeholder so filler values never match user queries.
func appendToken(tokens []string, s string) []string {
	if s == "" || s == UnknownID {
		return tokens
	}
	return append(tokens, Canonicalize(s))
}
