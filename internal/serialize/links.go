package serialize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

// selfLink builds _links.self: always present, carrying the temporal
// sequence when the table is temporal.
func (b *Builder) selfLink(ds *sdata.Dataset, t *sdata.Table, row *store.Row) map[string]any {
	idVal := identifierValue(t, row)
	href := fmt.Sprintf("%s/%s/%s/%s/", b.BaseURL, ds.ID, sdata.SnakeName(t.ID), idVal)

	out := map[string]any{"href": href}
	if t.IsTemporal() {
		if seq, ok := row.Get(t.Temporal.SequenceField); ok {
			out["href"] = fmt.Sprintf("%s?volgnummer=%v", href, seq)
			out["volgnummer"] = seq
		}
	}
	return out
}

func (b *Builder) schemaURI(ds *sdata.Dataset, t *sdata.Table) string {
	return fmt.Sprintf("%s/../schemas/%s/%s#%s", b.BaseURL, ds.ID, ds.Version, t.ID)
}

// identifierValue concatenates the table's composite identifier parts,
// in declaration order, using "." as the legacy DSO composite separator.
func identifierValue(t *sdata.Table, row *store.Row) string {
	if len(t.Identifier) == 1 {
		v, _ := row.Get(t.Identifier[0])
		return fmt.Sprint(v)
	}
	parts := make([]string, 0, len(t.Identifier))
	for _, id := range t.Identifier {
		v, _ := row.Get(id)
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ".")
}

// relationLinks builds the _links entry for one relation: a single
// object for a to-one relation, an array for to-many (reverse FK or
// M2M). Loose-relation targets surface only the
// logical identifier (no sequence pinned), since the FK itself never
// bound one.
func (b *Builder) relationLinks(ds *sdata.Dataset, target *sdata.Table, f *sdata.Field, children []*store.Row, many bool) (any, *apierror.Error) {
	build := func(row *store.Row) map[string]any {
		idVal := identifierValue(target, row)
		href := fmt.Sprintf("%s/%s/%s/%s/", b.BaseURL, ds.ID, sdata.SnakeName(target.ID), idVal)
		entry := map[string]any{"href": href, "title": idVal}
		if target.IsTemporal() {
			if f != nil && f.IsLooseRelation {
				// loose relation: logical id only, no sequence pin.
			} else if seq, ok := row.Get(target.Temporal.SequenceField); ok {
				entry["href"] = fmt.Sprintf("%s?volgnummer=%v", href, seq)
				entry["volgnummer"] = seq
			}
		}
		for _, id := range target.Identifier {
			if v, ok := row.Get(id); ok {
				entry[id] = v
			}
		}
		return entry
	}

	if !many {
		if len(children) == 0 {
			return map[string]any{}, nil
		}
		return build(children[0]), nil
	}

	out := make([]map[string]any, 0, len(children))
	for _, c := range children {
		out = append(out, build(c))
	}
	return out, nil
}

// summaryHref builds the pre-built filter query string a `format:
// summary` reverse relation uses instead of embedding.
func (b *Builder) summaryHref(ds *sdata.Dataset, target *sdata.Table, ar *sdata.AdditionalRelation) string {
	q := url.Values{}
	q.Set(ar.Relation.Table+"Id", "{id}")
	return fmt.Sprintf("%s/%s/%s/?%s", b.BaseURL, ds.ID, sdata.SnakeName(target.ID), q.Encode())
}
