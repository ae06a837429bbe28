package store

import (
	"fmt"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/qplan"
)

// Dialect renders a QueryPlan into a parameterized SQL string plus its
// bind arguments, in the table/alias order the plan already fixed.
// User-controlled values reach the statement only through the args
// slice, never through string interpolation.
type Dialect interface {
	Name() string
	Placeholder(argIndex int) string
	Quote(ident string) string
	RenderSelect(plan *qplan.QueryPlan) (sql string, args []any, err error)
	RenderCount(plan *qplan.QueryPlan) (sql string, args []any, err error)
}

// builder assembles the SELECT incrementally through a strings.Builder,
// substituting placeholders as each predicate is rendered.
type builder struct {
	d    Dialect
	sql  strings.Builder
	args []any
}

func newBuilder(d Dialect) *builder { return &builder{d: d} }

func (b *builder) write(s string) { b.sql.WriteString(s) }

func (b *builder) bind(v any) {
	b.args = append(b.args, v)
	b.write(b.d.Placeholder(len(b.args)))
}

func renderBaseSelect(d Dialect, plan *qplan.QueryPlan, countOnly bool) (string, []any, error) {
	b := newBuilder(d)
	base := plan.Table.ID

	b.write("SELECT ")
	if plan.Distinct {
		b.write("DISTINCT ")
	}
	if countOnly {
		b.write("COUNT(*)")
	} else {
		renderProjection(b, plan)
	}

	b.write(" FROM ")
	b.write(d.Quote(base))

	for _, j := range plan.Joins {
		renderJoin(b, d, base, j)
	}

	if len(plan.WhereTerms) > 0 {
		b.write(" WHERE ")
		if err := renderWhere(b, d, base, plan.WhereTerms); err != nil {
			return "", nil, err
		}
	}

	if !countOnly {
		renderOrderBy(b, d, base, plan)
		renderPaging(b, plan)
	}

	return b.sql.String(), b.args, nil
}

func renderProjection(b *builder, plan *qplan.QueryPlan) {
	if len(plan.SelectedFields) == 0 {
		b.write(b.d.Quote(plan.Table.ID))
		b.write(".*")
		return
	}
	for i, id := range plan.SelectedFields {
		if i > 0 {
			b.write(", ")
		}
		col := id
		if f, ok := plan.Table.Field(id); ok && f.ColumnName != "" {
			col = f.ColumnName
		}
		b.write(b.d.Quote(plan.Table.ID))
		b.write(".")
		b.write(b.d.Quote(col))
		if col != id {
			// rows are keyed by field ID downstream
			b.write(" AS ")
			b.write(b.d.Quote(id))
		}
	}
}

func renderJoin(b *builder, d Dialect, base string, j *qplan.JoinSpec) {
	switch j.Kind {
	case qplan.JoinManyToMany:
		// Two hops: base -> through -> target. The through table and its
		// column pair come from the schema's M2M naming convention,
		// resolved by the planner.
		thatAlias := j.Alias + "_t"
		b.write(" LEFT JOIN ")
		b.write(d.Quote(j.ThroughTable))
		b.write(" AS ")
		b.write(d.Quote(thatAlias))
		b.write(" ON ")
		b.write(d.Quote(thatAlias) + "." + d.Quote(j.ThroughLocalCol))
		b.write(" = ")
		b.write(d.Quote(base) + "." + d.Quote("id"))

		b.write(" LEFT JOIN ")
		b.write(d.Quote(j.Table.ID))
		b.write(" AS ")
		b.write(d.Quote(j.Alias))
		b.write(" ON ")
		b.write(d.Quote(j.Alias) + "." + d.Quote("id"))
		b.write(" = ")
		b.write(d.Quote(thatAlias) + "." + d.Quote(j.ThroughTargetCol))

	case qplan.JoinReverseFK:
		local := j.LocalCol
		if local == "" {
			local = "id"
		}
		b.write(" LEFT JOIN ")
		b.write(d.Quote(j.Table.ID))
		b.write(" AS ")
		b.write(d.Quote(j.Alias))
		b.write(" ON ")
		b.write(d.Quote(j.Alias) + "." + d.Quote(j.TargetCol))
		b.write(" = ")
		b.write(d.Quote(base) + "." + d.Quote(local))

	default: // forward FK
		b.write(" LEFT JOIN ")
		b.write(d.Quote(j.Table.ID))
		b.write(" AS ")
		b.write(d.Quote(j.Alias))
		b.write(" ON ")
		b.write(d.Quote(j.Alias) + "." + d.Quote(j.TargetCol))
		b.write(" = ")
		b.write(d.Quote(base) + "." + d.Quote(j.LocalCol))
	}
}

func renderWhere(b *builder, d Dialect, base string, terms []qplan.Predicate) error {
	for i, t := range terms {
		if i > 0 {
			b.write(" AND ")
		}
		if err := renderPredicate(b, d, base, t); err != nil {
			return err
		}
	}
	return nil
}

func renderPredicate(b *builder, d Dialect, base string, t qplan.Predicate) error {
	col := qualify(d, base, t.Alias, t.Column)
	lhs := col
	if t.CaseInsensitive {
		lhs = "UPPER(" + col + ")"
	}

	switch {
	case t.Combinator == "latest-self-join":
		return renderLatestSlice(b, d, base, t)

	case t.Combinator == "OR-NULL":
		b.write("(")
		renderSimpleOp(b, lhs, t)
		b.write(" OR " + col + " IS NULL)")
		return nil
	}

	switch t.Op {
	case qplan.OpIsNull:
		b.write(col + " IS NULL")
	case qplan.OpNotNull:
		b.write(col + " IS NOT NULL")
	case qplan.OpIsEmpty:
		b.write("(" + col + " = '') IS NOT FALSE")
	case qplan.OpNotEmpty:
		b.write("(" + col + " = '') IS FALSE")
	case qplan.OpIn:
		b.write(lhs + " IN (")
		for i, a := range t.Args {
			if i > 0 {
				b.write(", ")
			}
			b.bindMaybeUpper(t, a)
		}
		b.write(")")
	case qplan.OpLike:
		b.write(lhs + " LIKE ")
		b.bindMaybeUpper(t, t.Args[0])
		b.write(" ESCAPE '\\'")
	case qplan.OpNeq:
		b.write("(" + col + " IS NULL OR " + lhs + " != ")
		b.bindMaybeUpper(t, t.Args[0])
		b.write(")")
	case qplan.OpContains:
		if t.SRID != 0 && len(t.Args) == 2 {
			// point-in-geometry: the planner has already reprojected the
			// input point to the column's SRID.
			b.write("ST_Contains(" + col + ", ST_SetSRID(ST_MakePoint(")
			b.bind(t.Args[0])
			b.write(", ")
			b.bind(t.Args[1])
			b.write(fmt.Sprintf("), %d))", t.SRID))
			break
		}
		if t.CaseInsensitive {
			b.write("UPPER(" + col + ") @> UPPER(")
			b.bind(t.Args[0])
			b.write(")")
			break
		}
		b.write(col + " @> ")
		b.bind(t.Args[0])
	default:
		renderSimpleOp(b, lhs, t)
	}
	return nil
}

func renderSimpleOp(b *builder, lhs string, t qplan.Predicate) {
	b.write(lhs + " " + string(t.Op) + " ")
	if len(t.Args) > 0 {
		b.bindMaybeUpper(t, t.Args[0])
	}
}

// renderLatestSlice turns the temporal resolver's marker predicate into
// a correlated MAX(sequence) subquery: the row is part of the "latest"
// slice iff its sequence equals the greatest sequence sharing its
// logical identifier.
func renderLatestSlice(b *builder, d Dialect, base string, t qplan.Predicate) error {
	if t.SelfJoinTableID == "" || len(t.SelfJoinIdentifier) == 0 {
		return fmt.Errorf("store: latest-slice predicate missing self-join metadata for column %q", t.Column)
	}
	outer := t.Alias
	if outer == "" {
		outer = base
	}
	inner := "l_" + outer

	b.write(qualify(d, base, t.Alias, t.Column))
	b.write(" = (SELECT MAX(" + d.Quote(inner) + "." + d.Quote(t.Column) + ") FROM ")
	b.write(d.Quote(t.SelfJoinTableID))
	b.write(" AS " + d.Quote(inner) + " WHERE ")
	for i, idCol := range t.SelfJoinIdentifier {
		if i > 0 {
			b.write(" AND ")
		}
		b.write(d.Quote(inner) + "." + d.Quote(idCol))
		b.write(" = ")
		b.write(d.Quote(outer) + "." + d.Quote(idCol))
	}
	b.write(")")
	return nil
}

func (b *builder) bindMaybeUpper(t qplan.Predicate, v any) {
	if t.CaseInsensitive {
		if s, ok := v.(string); ok {
			b.write("UPPER(")
			b.bind(s)
			b.write(")")
			return
		}
	}
	b.bind(v)
}

func qualify(d Dialect, base, alias, col string) string {
	if alias == "" {
		return d.Quote(base) + "." + d.Quote(col)
	}
	return d.Quote(alias) + "." + d.Quote(col)
}

func renderOrderBy(b *builder, d Dialect, base string, plan *qplan.QueryPlan) {
	if len(plan.OrderBy) == 0 {
		return
	}
	b.write(" ORDER BY ")
	for i, o := range plan.OrderBy {
		if i > 0 {
			b.write(", ")
		}
		b.write(qualify(d, base, o.Alias, o.Column))
		if o.Desc {
			b.write(" DESC")
		}
	}
}

func renderPaging(b *builder, plan *qplan.QueryPlan) {
	if plan.Pagination.Disabled {
		return
	}
	// one extra row so the HAL renderer can detect "next" without a
	// second round trip.
	limit := plan.Pagination.Size + 1
	offset := (plan.Pagination.Page - 1) * plan.Pagination.Size
	b.write(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
}
