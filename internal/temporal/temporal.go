// Package temporal applies the "active slice" predicate to temporal
// tables reached in a query plan or relation expansion: every logical
// identifier resolves to at most one physical row per response page.
package temporal

import (
	"net/url"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// Request is the subset of request state the resolver needs: any
// explicit sequence pin, and any dimension query parameters.
type Request struct {
	Query url.Values
}

// ResolveSlice picks the temporal slice for one table, first match
// wins: explicit sequence pin, then an explicit dimension parameter,
// else "latest".
func ResolveSlice(t *sdata.Table, req Request) (*qplan.TemporalSliceSpec, *apierror.Error) {
	if !t.IsTemporal() {
		return nil, nil
	}
	tm := t.Temporal

	if pinned := req.Query.Get(tm.SequenceField); pinned != "" {
		return &qplan.TemporalSliceSpec{SequenceField: tm.SequenceField, PinnedValue: pinned}, nil
	}
	// Legacy alias: the generic "volgnummer" parameter, when the table's
	// own sequence field is named something else.
	if pinned := req.Query.Get("volgnummer"); pinned != "" && tm.SequenceField != "volgnummer" {
		return &qplan.TemporalSliceSpec{SequenceField: tm.SequenceField, PinnedValue: pinned}, nil
	}

	for name := range tm.Dimensions {
		if v := req.Query.Get(name); v != "" {
			return &qplan.TemporalSliceSpec{
				SequenceField: tm.SequenceField,
				Dimension:     name,
				DimensionVal:  v,
			}, nil
		}
	}

	return &qplan.TemporalSliceSpec{SequenceField: tm.SequenceField, Latest: true}, nil
}

// ApplyToPlan injects the resolved slice's WHERE terms into plan for
// the base table, and for every temporal table the plan joins (of any
// join kind) resolves a slice from the same request and adds its terms
// once per join.
func ApplyToPlan(plan *qplan.QueryPlan, reg *sdata.Registry, req Request) *apierror.Error {
	slice, err := ResolveSlice(plan.Table, req)
	if err != nil {
		return err
	}
	plan.TemporalSlice = slice
	if slice != nil {
		plan.WhereTerms = append(plan.WhereTerms, sliceTerms(plan.Table, "", slice)...)
	}

	for _, j := range plan.Joins {
		if !j.Table.IsTemporal() {
			continue
		}
		jslice, jerr := ResolveSlice(j.Table, req)
		if jerr != nil {
			return jerr
		}
		if jslice == nil {
			continue
		}
		plan.WhereTerms = append(plan.WhereTerms, sliceTerms(j.Table, j.Alias, jslice)...)
	}
	return nil
}

// sliceTerms renders the slice into WHERE predicates. A dimension slice
// becomes a direct start/end range; "latest" becomes a marker predicate
// the SQL layer turns into a correlated MAX(sequence) subquery over the
// table's logical identifier.
func sliceTerms(t *sdata.Table, alias string, slice *qplan.TemporalSliceSpec) []qplan.Predicate {
	switch {
	case slice.PinnedValue != "":
		return []qplan.Predicate{{
			Alias: alias, Column: slice.SequenceField, Op: qplan.OpEq,
			Args: []any{slice.PinnedValue},
		}}
	case slice.Dimension != "":
		dim := t.Temporal.Dimensions[slice.Dimension]
		return []qplan.Predicate{
			{Alias: alias, Column: dim.Start, Op: qplan.OpLte, Args: []any{slice.DimensionVal}},
			{Alias: alias, Column: dim.End, Op: qplan.OpGt, Args: []any{slice.DimensionVal}, Combinator: "OR-NULL"},
		}
	default:
		return []qplan.Predicate{{
			Alias:              alias,
			Column:             slice.SequenceField,
			Op:                 qplan.OpEq,
			Combinator:         "latest-self-join",
			SelfJoinTableID:    t.ID,
			SelfJoinIdentifier: logicalIdentifier(t),
		}}
	}
}

// logicalIdentifier is the identifier minus the sequence field: the
// columns that name the logical entity across its versions.
func logicalIdentifier(t *sdata.Table) []string {
	seq := ""
	if t.Temporal != nil {
		seq = t.Temporal.SequenceField
	}
	out := make([]string, 0, len(t.Identifier))
	for _, id := range t.Identifier {
		if id == seq {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		out = append(out, "id")
	}
	return out
}
