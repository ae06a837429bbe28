// Package authz implements the authorization gate: table-level access,
// per-field filter readability (with a mandatory-filter-set exemption),
// mandatoryFilterSet satisfaction, and field-level response visibility.
package authz

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// Checker implements qplan.FieldAccessChecker for one request. It is
// constructed once per request by Gate.Authorize after step 3's
// mandatoryFilterSet satisfaction check has run, so Exempt already
// reflects which dotted field paths are waived from the per-field
// check in step 2.
type Checker struct {
	US      *scopes.UserScopes
	Dataset *sdata.Dataset
	Table   *sdata.Table
	Exempt  map[string]bool
}

// CheckFieldPath implements qplan.FieldAccessChecker: every hop of a
// resolved path must be readable, unless the path (as filter-key text)
// is in Exempt.
func (c *Checker) CheckFieldPath(parts []sdata.FieldPathPart) *apierror.Error {
	if c.Exempt[dottedPath(parts)] {
		return nil
	}

	cur := c.Table
	for _, p := range parts {
		switch {
		case p.Field != nil:
			if !scopes.HasFieldAccess(c.US, c.Dataset, cur, p.Field).Granted() {
				return apierror.New(apierror.KindAccessDenied, "field not accessible: "+p.Field.ID).
					WithInvalidParam("query", p.Field.ID, "forbidden")
			}
		case p.Relation != nil:
			if !scopes.HasFieldAccess(c.US, c.Dataset, cur, p.Relation).Granted() {
				return apierror.New(apierror.KindAccessDenied, "relation not accessible: "+p.Relation.ID).
					WithInvalidParam("query", p.Relation.ID, "forbidden")
			}
		}
		if p.Table != nil {
			cur = p.Table
		}
	}
	return nil
}

func dottedPath(parts []sdata.FieldPathPart) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Field != nil:
			segs = append(segs, p.Field.ID)
		case p.Relation != nil:
			segs = append(segs, p.Relation.ID)
		case p.AdditionalRelation != nil:
			segs = append(segs, p.AdditionalRelation.ID)
		}
	}
	return strings.Join(segs, ".")
}
