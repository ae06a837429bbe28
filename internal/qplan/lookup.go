package qplan

import (
	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// allowedLookups is the per-type lookup whitelist. The
// empty string denotes the default/exact lookup.
var allowedLookups = map[sdata.FieldType]map[string]bool{
	sdata.TypeBoolean: {"": true, "isnull": true},
	sdata.TypeInteger: {"": true, "gt": true, "gte": true, "lt": true, "lte": true, "in": true, "not": true, "isnull": true},
	sdata.TypeNumber:  {"": true, "gt": true, "gte": true, "lt": true, "lte": true, "in": true, "not": true, "isnull": true},
	sdata.TypeDate:    {"": true, "gt": true, "gte": true, "lt": true, "lte": true, "in": true, "not": true, "isnull": true},
	sdata.TypeTime:    {"": true, "gt": true, "gte": true, "lt": true, "lte": true, "in": true, "not": true, "isnull": true},
	sdata.TypeDateTime: {"": true, "gt": true, "gte": true, "lt": true, "lte": true, "in": true, "not": true, "isnull": true},
	sdata.TypeString:  {"": true, "in": true, "not": true, "isnull": true, "isempty": true, "like": true},
	sdata.TypeURI:     {"": true, "in": true, "not": true, "isnull": true, "isempty": true, "like": true},
	sdata.TypeArray:   {"": true, "contains": true},
	sdata.TypeGeoPoly:  {"": true, "contains": true, "isnull": true, "not": true},
	sdata.TypeGeoMulti: {"": true, "contains": true, "isnull": true, "not": true},
	sdata.TypeGeoPoint: {"": true, "isnull": true, "not": true},
}

// identifierLookups applies to fields that are identifier parts or
// forward-FK columns, overriding the scalar type's own table per
// their own narrower rule.
var identifierLookups = map[string]bool{"": true, "in": true, "not": true, "isnull": true}

// checkLookup validates lookup against f's type, honoring the
// identifier/FK override. Returns UnsupportedLookup (400) on mismatch.
func checkLookup(f *sdata.Field, lookup string) *apierror.Error {
	table := allowedLookups[f.Type]
	if (f.IsIdentifierPart || f.IsRelation()) && !f.Type.IsGeo() {
		table = identifierLookups
	}
	if table == nil {
		return apierror.Newf(apierror.KindUnsupportedLookup, "field %q has no supported lookups", f.ID)
	}
	if !table[lookup] {
		return apierror.Newf(apierror.KindUnsupportedLookup,
			"lookup %q is not supported on field %q", lookup, f.ID).
			WithInvalidParam("query", f.ID, "unsupported lookup for field type")
	}
	return nil
}
