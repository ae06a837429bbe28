// Package serialize builds the per-table HAL-JSON response shape
// (_links, body, _embedded) and drives lazy relation expansion. The
// schema descriptor travels with every value; there are no generated
// per-table types.
package serialize

import (
	"fmt"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/authz"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

// MaxExpandDepth caps relation-expansion recursion.
const MaxExpandDepth = 10

// ExpandMode selects which relations are eligible for _embedded.
type ExpandMode int

const (
	ExpandNone ExpandMode = iota
	ExpandAll
	ExpandScope
)

// Builder is the stateless per-request serializer; it is constructed
// once per request and reused across every row in the response.
type Builder struct {
	Registry *sdata.Registry
	Gate     *authz.Gate
	US       *scopes.UserScopes
	BaseURL  string // e.g. "https://api.data.amsterdam.nl/v1"
}

// Request carries the expand selection for one BuildRow call tree.
type Request struct {
	Mode        ExpandMode
	ScopePaths  map[string]bool // field IDs named by _expandScope
	AcceptedVia string          // relation field ID used to reach this table; elided on the child to keep expansion acyclic
}

// BuildRow renders one Row into its HAL representation: a
// map[string]any with "_links", "_embedded" (only when non-empty) and
// every visible body field merged in at the top level, matching the
// wire shape application/hal+json expects.
func (b *Builder) BuildRow(ds *sdata.Dataset, t *sdata.Table, row *store.Row, req Request, depth int) (map[string]any, *apierror.Error) {
	out := map[string]any{}
	links := map[string]any{}
	embedded := map[string]any{}

	links["self"] = b.selfLink(ds, t, row)
	links["schema"] = map[string]any{"href": b.schemaURI(ds, t)}

	for _, f := range t.Fields {
		if f.ID == req.AcceptedVia {
			// acyclicity: the reverse hop back to the parent is elided
			// from the child's own relation set.
			continue
		}

		perm := b.Gate.FieldVisibility(b.US, ds, t, f)
		if !perm.Granted() {
			continue
		}

		if f.IsRelation() {
			if err := b.renderRelationField(ds, t, f, row, req, depth, links, embedded); err != nil {
				return nil, err
			}
			continue
		}

		if isSelfLinkIdentifierColumn(t, f) {
			// Temporal identifier subcolumns already exposed via
			// _links.self are omitted from the body.
			continue
		}

		v, ok := row.Get(f.ID)
		if !ok {
			continue
		}
		out[f.ID] = perm.Apply(fmt.Sprint(v))
		if !stringLike(v) {
			out[f.ID] = v // non-string scalars pass through untransformed
		}
	}

	for _, ar := range t.AdditionalRelations {
		if err := b.renderAdditionalRelation(ds, t, ar, row, req, depth, links, embedded); err != nil {
			return nil, err
		}
	}

	out["_links"] = links
	if len(embedded) > 0 {
		out["_embedded"] = embedded
	}
	return out, nil
}

func stringLike(v any) bool {
	_, ok := v.(string)
	return ok
}

// isSelfLinkIdentifierColumn reports whether f is the table's temporal
// sequence field, already surfaced via _links.self and therefore
// omitted from the body.
func isSelfLinkIdentifierColumn(t *sdata.Table, f *sdata.Field) bool {
	return t.IsTemporal() && f.ID == t.Temporal.SequenceField
}

func (b *Builder) renderRelationField(ds *sdata.Dataset, t *sdata.Table, f *sdata.Field, row *store.Row, req Request, depth int, links, embedded map[string]any) *apierror.Error {
	children := row.Related(f.ID)

	target, ok := b.relationTarget(ds, f)
	if !ok {
		return nil
	}

	many := f.IsNestedTable || f.NMRelation != nil
	wantEmbed := req.Mode == ExpandAll || (req.Mode == ExpandScope && req.ScopePaths[f.ID])

	linkVal, lerr := b.relationLinks(ds, target, f, children, many)
	if lerr != nil {
		return lerr
	}
	links[f.ID] = linkVal

	targetDS, allowed := b.expandTargetAccess(ds, target)
	if wantEmbed && !allowed {
		// auto-expansion silently omits an inaccessible target; asking
		// for it explicitly is a 403.
		if req.Mode == ExpandScope {
			return apierror.Newf(apierror.KindAccessDenied,
				"relation %q expands to a table you are not authorized for", f.ID)
		}
		wantEmbed = false
	}

	if !wantEmbed || len(children) == 0 {
		return nil
	}
	if depth+1 > MaxExpandDepth {
		return apierror.Newf(apierror.KindInvalidFilterSyntax,
			"expand recursion exceeds the maximum depth of %d at relation %q", MaxExpandDepth, f.ID)
	}

	embeddedRows, err := b.embedChildren(targetDS, target, children, f.ID, req, depth)
	if err != nil {
		return err
	}
	if many {
		embedded[f.ID] = embeddedRows
	} else if len(embeddedRows) > 0 {
		embedded[f.ID] = embeddedRows[0]
	}
	return nil
}

func (b *Builder) renderAdditionalRelation(ds *sdata.Dataset, t *sdata.Table, ar *sdata.AdditionalRelation, row *store.Row, req Request, depth int, links, embedded map[string]any) *apierror.Error {
	target, ok := b.Registry.GetTable(firstNonEmpty(ar.RelatedTable.Dataset, ds.ID), ar.RelatedTable.Table)
	if !ok {
		return nil
	}

	children := row.Related(ar.ID)
	wantEmbed := req.Mode == ExpandAll || (req.Mode == ExpandScope && req.ScopePaths[ar.ID])

	if ar.Format == sdata.RelFormatSummary {
		links[ar.ID] = map[string]any{
			"count": len(children),
			"href":  b.summaryHref(ds, target, ar),
		}
		if wantEmbed && req.Mode == ExpandScope {
			return apierror.Newf(apierror.KindInvalidFilterSyntax,
				"relation %q is a summary relation and cannot be expanded", ar.ID)
		}
		return nil
	}

	linkVal, lerr := b.relationLinks(ds, target, nil, children, true)
	if lerr != nil {
		return lerr
	}
	links[ar.ID] = linkVal

	targetDS, allowed := b.expandTargetAccess(ds, target)
	if wantEmbed && !allowed {
		if req.Mode == ExpandScope {
			return apierror.Newf(apierror.KindAccessDenied,
				"relation %q expands to a table you are not authorized for", ar.ID)
		}
		wantEmbed = false
	}

	if !wantEmbed || len(children) == 0 {
		return nil
	}
	if depth+1 > MaxExpandDepth {
		return apierror.Newf(apierror.KindInvalidFilterSyntax,
			"expand recursion exceeds the maximum depth of %d at relation %q", MaxExpandDepth, ar.ID)
	}
	embeddedRows, err := b.embedChildren(targetDS, target, children, ar.ID, req, depth)
	if err != nil {
		return err
	}
	embedded[ar.ID] = embeddedRows
	return nil
}

func (b *Builder) embedChildren(ds *sdata.Dataset, target *sdata.Table, children []*store.Row, viaField string, parentReq Request, depth int) ([]map[string]any, *apierror.Error) {
	out := make([]map[string]any, 0, len(children))
	childReq := Request{Mode: parentReq.Mode, ScopePaths: parentReq.ScopePaths, AcceptedVia: reverseFieldGuess(target, viaField)}
	for _, c := range children {
		rendered, err := b.BuildRow(ds, target, c, childReq, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

// reverseFieldGuess picks the field to elide on the child: a forward
// relation field on target whose ID equals viaField (case-insensitively).
// Its relation target is not compared; exact reverse-matching requires
// the relatedFieldIds metadata. Absent a match this returns "" and
// relies on MaxExpandDepth as the backstop.
func reverseFieldGuess(target *sdata.Table, viaField string) string {
	for _, f := range target.Fields {
		if f.Relation != nil && strings.EqualFold(f.ID, viaField) {
			return f.ID
		}
	}
	return ""
}

// expandTargetAccess resolves the dataset a relation target belongs to
// and reports whether the current scopes may read the target table at
// all (its own auth unioned with its dataset's, or an active profile).
func (b *Builder) expandTargetAccess(ds *sdata.Dataset, target *sdata.Table) (*sdata.Dataset, bool) {
	tds := ds
	if target.Dataset != "" && target.Dataset != ds.ID {
		if d, ok := b.Registry.GetDataset(target.Dataset); ok {
			tds = d
		}
	}
	return tds, scopes.HasTableAccess(b.US, tds, target).Granted()
}

func (b *Builder) relationTarget(ds *sdata.Dataset, f *sdata.Field) (*sdata.Table, bool) {
	var ref sdata.TableRef
	switch {
	case f.NMRelation != nil:
		ref = *f.NMRelation
	case f.Relation != nil:
		ref = *f.Relation
	default:
		return nil, false
	}
	dsID := ref.Dataset
	if dsID == "" {
		dsID = ds.ID
	}
	return b.Registry.GetTable(dsID, ref.Table)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
