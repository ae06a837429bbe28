// Package filter lexes query-string filter keys of the form
// `field[.sub]*[\[op\]]=value` into a flat list of filter terms.
package filter

import (
	"net/url"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
)

// reservedKeys are query-string keys the filter parser never treats as
// a field filter.
var reservedKeys = map[string]struct{}{
	"_count": {}, "_expand": {}, "_expandScope": {}, "_fields": {},
	"_format": {}, "_pageSize": {}, "_sort": {}, "page": {},
	// legacy synonyms
	"fields": {}, "page_size": {}, "sorteer": {}, "format": {},
}

// IsReserved reports whether key is a reserved control parameter rather
// than a filter.
func IsReserved(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Term is one parsed filter term: a field path, an optional lookup
// operator, and its (possibly multi-valued) raw string values.
type Term struct {
	Key       string   // the original query key, e.g. "regimes.eindtijd[gte]"
	Path      []string // dotted path split on '.'
	Lookup    string   // "" means the default/exact lookup
	RawValues []string // already comma-split, except for the `like` lookup
}

// repeatableLookups are lookups that may legitimately appear multiple
// times for the same key; their predicates AND-combine.
var repeatableLookups = map[string]struct{}{
	"not": {},
}

// naturallyMultiLookups are lookups whose single raw value is never
// comma-split. `in` takes a comma-split scalar list either way, so it
// is intentionally absent here; this set is for lookups where a comma
// inside the value is meaningful verbatim text (e.g. `like` patterns).
var naturallyMultiLookups = map[string]struct{}{
	"like": {},
}

// Parse lexes every non-reserved key in q into Terms. Multi-valued
// keys (the same key repeated in the query string) are collapsed into
// one Term per (path, lookup) pair; `not` is the only lookup allowed to
// repeat and AND-combine (each repeated value becomes its own Term
// rather than being collapsed into one).
func Parse(q url.Values) ([]Term, *apierror.Error) {
	var terms []Term
	for key, values := range q {
		if IsReserved(key) {
			continue
		}
		path, lookup, err := lexKey(key)
		if err != nil {
			return nil, err
		}

		for _, raw := range values {
			term := Term{Key: key, Path: path, Lookup: lookup}
			if _, natural := naturallyMultiLookups[lookup]; natural {
				term.RawValues = []string{raw}
			} else {
				term.RawValues = splitComma(raw)
			}
			terms = append(terms, term)
		}
	}
	return coalesce(terms), nil
}

// coalesce merges repeated (path, lookup) terms that are not `not` into
// a single term (last one wins, matching typical query-string semantics
// for accidental duplication), while leaving repeatable `not` terms as
// separate AND-combined terms.
func coalesce(terms []Term) []Term {
	type key struct {
		path   string
		lookup string
	}
	seen := make(map[key]int, len(terms))
	out := make([]Term, 0, len(terms))

	for _, t := range terms {
		if _, repeatable := repeatableLookups[t.Lookup]; repeatable {
			out = append(out, t)
			continue
		}
		k := key{path: strings.Join(t.Path, "."), lookup: t.Lookup}
		if idx, ok := seen[k]; ok {
			out[idx] = t
			continue
		}
		seen[k] = len(out)
		out = append(out, t)
	}
	return out
}

func splitComma(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out
}

// lexKey parses one query key against the grammar:
//
//	key     := path ( '[' lookup ']' )?
//	path    := ident ( '.' ident )*
//	lookup  := [A-Za-z0-9_-]+
func lexKey(key string) ([]string, string, *apierror.Error) {
	pathPart := key
	lookup := ""

	if open := strings.IndexByte(key, '['); open >= 0 {
		if !strings.HasSuffix(key, "]") {
			return nil, "", apierror.Newf(apierror.KindInvalidFilterSyntax,
				"unmatched '[' in filter key %q", key).WithInvalidParam("query", key, "unmatched brackets")
		}
		pathPart = key[:open]
		lookup = key[open+1 : len(key)-1]
		if lookup == "" || strings.ContainsAny(lookup, "[]") {
			return nil, "", apierror.Newf(apierror.KindInvalidFilterSyntax,
				"malformed lookup in filter key %q", key).WithInvalidParam("query", key, "malformed lookup")
		}
	} else if strings.ContainsRune(key, ']') {
		return nil, "", apierror.Newf(apierror.KindInvalidFilterSyntax,
			"unmatched ']' in filter key %q", key).WithInvalidParam("query", key, "unmatched brackets")
	}

	if pathPart == "" {
		return nil, "", apierror.Newf(apierror.KindInvalidFilterSyntax,
			"empty field path in filter key %q", key).WithInvalidParam("query", key, "empty field path")
	}

	segs := strings.Split(pathPart, ".")
	for _, s := range segs {
		if s == "" {
			return nil, "", apierror.Newf(apierror.KindInvalidFilterSyntax,
				"empty path segment in filter key %q", key).WithInvalidParam("query", key, "empty path segment")
		}
	}
	return segs, lookup, nil
}
