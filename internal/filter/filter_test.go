package filter_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/filter"
)

func TestParseSkipsReservedKeys(t *testing.T) {
	q := url.Values{"_expand": {"true"}, "page": {"1"}, "naam": {"foo"}}
	terms, err := filter.Parse(q)
	require.Nil(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"naam"}, terms[0].Path)
}

func TestParseDottedPathWithLookup(t *testing.T) {
	q := url.Values{"regimes.eindtijd[gte]": {"20:05"}}
	terms, err := filter.Parse(q)
	require.Nil(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"regimes", "eindtijd"}, terms[0].Path)
	assert.Equal(t, "gte", terms[0].Lookup)
	assert.Equal(t, []string{"20:05"}, terms[0].RawValues)
}

func TestParseInSplitsOnComma(t *testing.T) {
	q := url.Values{"status[in]": {"a,b,c"}}
	terms, err := filter.Parse(q)
	require.Nil(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"a", "b", "c"}, terms[0].RawValues)
}

func TestParseNotRepeatsAndCombinesAsSeparateTerms(t *testing.T) {
	q := url.Values{"status[not]": {"a", "b"}}
	terms, err := filter.Parse(q)
	require.Nil(t, err)
	assert.Len(t, terms, 2)
}

func TestParseDuplicateNonRepeatableKeyLastWins(t *testing.T) {
	q := url.Values{"naam": {"first", "second"}}
	terms, err := filter.Parse(q)
	require.Nil(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"second"}, terms[0].RawValues)
}

func TestParseUnmatchedBracket(t *testing.T) {
	q := url.Values{"naam[gte": {"foo"}}
	_, err := filter.Parse(q)
	require.NotNil(t, err)
	assert.Equal(t, 400, err.Kind.Status())
}

func TestParseEmptyPathSegment(t *testing.T) {
	q := url.Values{"regimes.": {"foo"}}
	_, err := filter.Parse(q)
	require.NotNil(t, err)
}

func TestIsReservedLegacySynonyms(t *testing.T) {
	for _, k := range []string{"fields", "page_size", "sorteer", "format", "_expandScope"} {
		assert.True(t, filter.IsReserved(k))
	}
}
