package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeUnifiesTaiSpellings(t *testing.T) {
	assert.Equal(t, Canonicalize("臺北"), Canonicalize("台北"))
	assert.Equal(t, "abc", Canonicalize("ABC"))
}

func TestSplitQuery(t *testing.T) {
	assert.Empty(t, SplitQuery(""))
	assert.Empty(t, SplitQuery("  ,  "))
	assert.Equal(t, []string{"307", "111-fb"}, SplitQuery("307, 111-FB"))
	assert.Equal(t, []string{"臺北", "臺北"}, SplitQuery("台北 臺北"))
}

func TestMatchesTokens(t *testing.T) {
	tokens := []string{Canonicalize("307"), Canonicalize("111-FB"), Canonicalize("臺北客運")}

	// Empty query matches everything.
	assert.True(t, MatchesTokens(tokens, nil))

	// Substring containment within a field.
	assert.True(t, MatchesTokens(tokens, SplitQuery("11-f")))

	// OR across terms: one bogus term does not kill the match.
	assert.True(t, MatchesTokens(tokens, SplitQuery("nosuchbus 307")))

	assert.False(t, MatchesTokens(tokens, SplitQuery("651")))
}

func TestMatchesTokensCanonicalSymmetry(t *testing.T) {
	// Both spellings of "tai" must hit a record containing either, in
	// either direction of the comparison.
	tokensTai := []string{Canonicalize("台北客運")}
	tokensFormal := []string{Canonicalize("臺北客運")}

	for _, query := range []string{"台北", "臺北"} {
		assert.True(t, MatchesTokens(tokensTai, SplitQuery(query)), "query %q vs 台北客運", query)
		assert.True(t, MatchesTokens(tokensFormal, SplitQuery(query)), "query %q vs 臺北客運", query)
	}
}
