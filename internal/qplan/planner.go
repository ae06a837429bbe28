package qplan

import (
	"fmt"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/filter"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/value"
)

// FieldAccessChecker lets the planner ask the authorization gate
// whether every hop of a resolved field path is readable under the
// current request's scopes, without qplan importing authz.
type FieldAccessChecker interface {
	CheckFieldPath(parts []sdata.FieldPathPart) *apierror.Error
}

// Options is every input the planner needs to lower one request into a
// QueryPlan.
type Options struct {
	Registry    *sdata.Registry
	Access      FieldAccessChecker
	Dataset     *sdata.Dataset
	Table       *sdata.Table
	Filters     []filter.Term
	Sort        []string
	ExpandAll   bool
	ExpandScope []string
	FieldsParam []string
	AcceptCrs   string

	Page               int
	PageSize           int
	CountRequested     bool
	PaginationDisabled bool
}

const defaultPageSize = 20

// rdSRID is the SRID geometry columns are stored in; input points are
// reprojected to it before comparison.
const rdSRID = 28992

// Plan lowers opts into a QueryPlan. Temporal slice injection is a
// separate pass (internal/temporal), applied after Plan returns.
func Plan(opts Options) (*QueryPlan, *apierror.Error) {
	plan := &QueryPlan{Table: opts.Table, Dataset: opts.Dataset}

	selected, ferr := ResolveProjection(opts.Table, opts.FieldsParam)
	if ferr != nil {
		return nil, ferr
	}
	for id := range selected {
		plan.SelectedFields = append(plan.SelectedFields, id)
	}

	joinsByPath := make(map[string]*JoinSpec)

	for _, term := range opts.Filters {
		parts, err := opts.Registry.ResolveFieldPath(opts.Table, term.Path)
		if err != nil {
			return nil, mapFieldPathErr(err)
		}
		if aerr := opts.Access.CheckFieldPath(parts); aerr != nil {
			return nil, aerr
		}

		joins, distinct := joinsForPath(opts.Table, parts, joinsByPath)
		if distinct {
			plan.Distinct = true
		}
		for _, j := range joins {
			if _, ok := joinsByPath[j.LookupPath]; !ok {
				joinsByPath[j.LookupPath] = j
				plan.Joins = append(plan.Joins, j)
			}
		}

		terminal := parts[len(parts)-1]
		fld := terminal.Field
		if fld == nil {
			return nil, apierror.Newf(apierror.KindUnsupportedLookup,
				"cannot filter on relation %q directly", term.Key)
		}

		if lerr := checkLookup(fld, term.Lookup); lerr != nil {
			return nil, lerr
		}

		alias := ""
		if len(joins) > 0 {
			alias = joins[len(joins)-1].Alias
		}

		preds, perr := buildPredicate(fld, term, alias, opts.AcceptCrs)
		if perr != nil {
			return nil, perr
		}
		plan.WhereTerms = append(plan.WhereTerms, preds...)
	}

	sortTerms, serr := ResolveSort(opts.Registry, opts.Table, opts.Access, opts.Sort)
	if serr != nil {
		return nil, serr
	}
	plan.OrderBy = sortTerms

	if opts.ExpandAll || len(opts.ExpandScope) > 0 {
		prefetch, perr := resolveExpand(opts)
		if perr != nil {
			return nil, perr
		}
		plan.Prefetch = prefetch
	}

	size := opts.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	plan.Pagination = Pagination{
		Page:           page,
		Size:           size,
		CountRequested: opts.CountRequested,
		Disabled:       opts.PaginationDisabled,
	}

	return plan, nil
}

// joinsForPath emits one JoinSpec per non-terminal path hop, reusing an
// already-built join for a path prefix shared by an earlier filter. The
// terminal hop never produces a join: it is either a scalar on the last
// joined table, or a forward FK column filtered directly on its local
// column without traversing.
func joinsForPath(base *sdata.Table, parts []sdata.FieldPathPart, existing map[string]*JoinSpec) ([]*JoinSpec, bool) {
	var joins []*JoinSpec
	distinct := false
	pathSoFar := ""
	cur := base

	for i := 0; i < len(parts)-1; i++ {
		p := parts[i]
		pathSoFar += "/" + hopKey(p)

		if j, ok := existing[pathSoFar]; ok {
			joins = append(joins, j)
			if j.Kind != JoinForwardFK {
				distinct = true
			}
			cur = p.Table
			continue
		}

		var j *JoinSpec
		switch {
		case p.AdditionalRelation != nil:
			j = &JoinSpec{
				Kind:       JoinReverseFK,
				Alias:      aliasFor(pathSoFar),
				Table:      p.Table,
				LocalCol:   "id",
				TargetCol:  p.AdditionalRelation.Relation.Table + "Id",
				LookupPath: pathSoFar,
			}
			distinct = true
		case p.Relation != nil && p.Relation.NMRelation != nil:
			j = &JoinSpec{
				Kind:             JoinManyToMany,
				Alias:            aliasFor(pathSoFar),
				Table:            p.Table,
				LookupPath:       pathSoFar,
				ThroughTable:     cur.ID + "_" + p.Relation.ID,
				ThroughLocalCol:  cur.ID + "Id",
				ThroughTargetCol: p.Relation.ID + "Id",
			}
			distinct = true
		case p.Relation != nil && p.IsMany:
			j = &JoinSpec{
				Kind:       JoinReverseFK,
				Alias:      aliasFor(pathSoFar),
				Table:      p.Table,
				LocalCol:   "id",
				TargetCol:  p.Relation.ColumnName,
				LookupPath: pathSoFar,
			}
			distinct = true
		default:
			local := p.Relation.ColumnName
			if local == "" {
				local = p.Relation.ID + "Id"
			}
			j = &JoinSpec{
				Kind:       JoinForwardFK,
				Alias:      aliasFor(pathSoFar),
				Table:      p.Table,
				LocalCol:   local,
				TargetCol:  "id",
				LookupPath: pathSoFar,
			}
		}
		joins = append(joins, j)
		cur = p.Table
	}
	return joins, distinct
}

func hopKey(p sdata.FieldPathPart) string {
	switch {
	case p.Relation != nil:
		return p.Relation.ID
	case p.AdditionalRelation != nil:
		return p.AdditionalRelation.ID
	default:
		return ""
	}
}

func aliasFor(pathSoFar string) string {
	return fmt.Sprintf("j_%x", hash(pathSoFar))
}

func hash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func mapFieldPathErr(err error) *apierror.Error {
	switch e := err.(type) {
	case *sdata.ErrFieldNotFound:
		return apierror.Newf(apierror.KindFieldNotFound, "field not found: %s", e.Error()).
			WithInvalidParam("query", joinDotted(e.Path), "unknown field")
	case *sdata.ErrNotARelation:
		return apierror.Newf(apierror.KindFieldNotFound, "%s", e.Error())
	default:
		return apierror.Wrap(apierror.KindFieldNotFound, err)
	}
}

func joinDotted(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// buildPredicate lowers one filter term into WHERE predicates.
func buildPredicate(f *sdata.Field, term filter.Term, alias string, acceptCrs string) ([]Predicate, *apierror.Error) {
	col := f.ColumnName
	if col == "" {
		col = f.ID
	}

	switch term.Lookup {
	case "isnull":
		v, err := parseScalarForLookup(f, term, 0)
		if err != nil {
			return nil, err
		}
		b, _ := v.(bool)
		op := OpIsNull
		if !b {
			op = OpNotNull
		}
		return []Predicate{{Alias: alias, Column: col, Op: op}}, nil

	case "isempty":
		v, err := parseScalarForLookup(f, term, 0)
		if err != nil {
			return nil, err
		}
		b, _ := v.(bool)
		op := OpIsEmpty
		if !b {
			op = OpNotEmpty
		}
		return []Predicate{{Alias: alias, Column: col, Op: op}}, nil

	case "in":
		args := make([]any, 0, len(term.RawValues))
		for _, raw := range term.RawValues {
			v, err := parseScalar(f, raw, acceptCrs)
			if err != nil {
				return nil, err
			}
			args = append(args, bindable(v))
		}
		return []Predicate{{Alias: alias, Column: col, Op: OpIn, Args: args}}, nil

	case "not":
		v, err := parseScalar(f, term.RawValues[0], acceptCrs)
		if err != nil {
			return nil, err
		}
		return []Predicate{{
			Alias: alias, Column: col, Op: OpNeq, Args: []any{bindable(v)},
			CaseInsensitive: isStringNonPK(f),
		}}, nil

	case "like":
		pattern := toSQLLike(term.RawValues[0])
		return []Predicate{{Alias: alias, Column: col, Op: OpLike, Args: []any{pattern}, CaseInsensitive: isStringNonPK(f)}}, nil

	case "gt", "gte", "lt", "lte":
		v, err := parseScalar(f, term.RawValues[0], acceptCrs)
		if err != nil {
			return nil, err
		}
		opMap := map[string]PredOp{"gt": OpGt, "gte": OpGte, "lt": OpLt, "lte": OpLte}
		if dv, ok := v.(value.DateTimeValue); ok && dv.DateOnly {
			// a date-only bound on a date-time column compares against the
			// whole day: date(col) > X is col >= X+1d, date(col) <= X is
			// col < X+1d, and so on.
			return []Predicate{dateBoundPredicate(alias, col, term.Lookup, dv)}, nil
		}
		return []Predicate{{Alias: alias, Column: col, Op: opMap[term.Lookup], Args: []any{bindable(v)}}}, nil

	case "contains":
		if f.Type == sdata.TypeArray {
			vals := make([]string, 0, len(term.RawValues))
			for _, raw := range term.RawValues {
				vals = append(vals, raw)
			}
			return []Predicate{{Alias: alias, Column: col, Op: OpContains, Args: []any{vals}, CaseInsensitive: true}}, nil
		}
		pt, crs, err := value.ParsePoint(term.RawValues[0], acceptCrs)
		if err != nil {
			return nil, apierror.Newf(apierror.KindInvalidValue, "%s", err.Error()).
				WithInvalidParam("value", f.ID, "invalid coordinate")
		}
		rd, terr := geo.Transform(pt, crs, geo.RD)
		if terr != nil {
			return nil, apierror.Wrap(apierror.KindInvalidValue, terr)
		}
		return []Predicate{{Alias: alias, Column: col, Op: OpContains, Args: []any{rd[0], rd[1]}, SRID: rdSRID}}, nil

	case "":
		v, err := parseScalar(f, term.RawValues[0], acceptCrs)
		if err != nil {
			return nil, err
		}
		if dv, ok := v.(value.DateTimeValue); ok && dv.DateOnly {
			// a date-only value on a date-time column matches the whole day.
			return []Predicate{
				{Alias: alias, Column: col, Op: OpGte, Args: []any{dv.RangeStart}},
				{Alias: alias, Column: col, Op: OpLt, Args: []any{dv.RangeEnd}},
			}, nil
		}
		return []Predicate{{Alias: alias, Column: col, Op: OpEq, Args: []any{bindable(v)}}}, nil

	default:
		return nil, apierror.Newf(apierror.KindUnsupportedLookup, "lookup %q not implemented", term.Lookup)
	}
}

func dateBoundPredicate(alias, col, lookup string, dv value.DateTimeValue) Predicate {
	switch lookup {
	case "gt":
		return Predicate{Alias: alias, Column: col, Op: OpGte, Args: []any{dv.RangeEnd}}
	case "gte":
		return Predicate{Alias: alias, Column: col, Op: OpGte, Args: []any{dv.RangeStart}}
	case "lt":
		return Predicate{Alias: alias, Column: col, Op: OpLt, Args: []any{dv.RangeStart}}
	default: // lte
		return Predicate{Alias: alias, Column: col, Op: OpLt, Args: []any{dv.RangeEnd}}
	}
}

// bindable unwraps parsed values into types database/sql can bind.
func bindable(v any) any {
	if dv, ok := v.(value.DateTimeValue); ok {
		return dv.Instant
	}
	return v
}

func isStringNonPK(f *sdata.Field) bool {
	return (f.Type == sdata.TypeString || f.Type == sdata.TypeURI) && !f.IsIdentifierPart
}

func toSQLLike(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '%':
			out = append(out, '\\', '%')
		case '_':
			out = append(out, '\\', '_')
		case '*':
			out = append(out, '%')
		case '?':
			out = append(out, '_')
		default:
			out = append(out, raw[i])
		}
	}
	return string(out)
}

// parseScalarForLookup parses a boolean flag value for lookups like
// isnull/isempty whose "value" is itself a boolean (e.g. isnull=true).
func parseScalarForLookup(f *sdata.Field, term filter.Term, idx int) (any, *apierror.Error) {
	if idx >= len(term.RawValues) {
		return true, nil
	}
	b, err := value.ParseBool(term.RawValues[idx])
	if err != nil {
		return nil, apierror.Newf(apierror.KindInvalidValue, "%s", err.Error()).
			WithInvalidParam("value", term.Key, "must be true or false")
	}
	return b, nil
}

func parseScalar(f *sdata.Field, raw string, acceptCrs string) (any, *apierror.Error) {
	switch f.Type {
	case sdata.TypeBoolean:
		v, err := value.ParseBool(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	case sdata.TypeInteger:
		v, err := value.ParseInteger(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	case sdata.TypeNumber:
		v, err := value.ParseNumber(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	case sdata.TypeDate:
		v, err := value.ParseDate(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	case sdata.TypeDateTime:
		v, err := value.ParseDateTime(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	case sdata.TypeTime:
		v, err := value.ParseTime(raw)
		if err != nil {
			return nil, invalidValueErr(f, err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

func invalidValueErr(f *sdata.Field, err error) *apierror.Error {
	return apierror.Newf(apierror.KindInvalidValue, "%s", err.Error()).
		WithInvalidParam("value", f.ID, reasonOf(err))
}

// reasonOf strips the "invalid value: " prefix so the invalid-params
// reason reads as a bare sentence.
func reasonOf(err error) string {
	const prefix = "invalid value: "
	msg := err.Error()
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// resolveExpand resolves each requested relation path for prefetching.
// The access check stays with the serializer: auto-expansion silently
// omits inaccessible relations, explicit expansion of one is a 403, and
// that distinction is about the response shape, not the plan.
func resolveExpand(opts Options) ([]ExpandSpec, *apierror.Error) {
	paths := opts.ExpandScope
	if opts.ExpandAll {
		paths = allExpandablePaths(opts.Table)
	}

	out := make([]ExpandSpec, 0, len(paths))
	for _, p := range paths {
		segs := splitDotted(p)
		parts, err := opts.Registry.ResolveFieldPath(opts.Table, segs)
		if err != nil {
			if opts.ExpandAll {
				continue
			}
			return nil, mapFieldPathErr(err)
		}
		out = append(out, ExpandSpec{Path: segs, Parts: parts})
	}
	return out, nil
}

func allExpandablePaths(t *sdata.Table) []string {
	var out []string
	for _, f := range t.Fields {
		if f.IsRelation() {
			out = append(out, f.ID)
		}
	}
	for _, r := range t.AdditionalRelations {
		if r.Format != sdata.RelFormatSummary {
			out = append(out, r.ID)
		}
	}
	return out
}

func splitDotted(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
