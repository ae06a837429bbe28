package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/filter"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/serialize"
	"github.com/amsterdam/dso-gateway/internal/temporal"
)

// resolved bundles the schema nodes and authorization outcome one
// request carries from resolution through to rendering.
type resolved struct {
	dataset *sdata.Dataset
	table   *sdata.Table
	us      *scopes.UserScopes
	checker qplan.FieldAccessChecker
}

// resolveRequest resolves the /v1/{dataset}/{table} URL segments and
// runs the table-level authorization step. Every handler starts here.
func (s *Server) resolveRequest(w http.ResponseWriter, r *http.Request) (*resolved, *qplan.Options, bool) {
	datasetID := chi.URLParam(r, "dataset")
	tableSnake := chi.URLParam(r, "table")

	ds, ok := s.Registry.GetDataset(datasetID)
	if !ok {
		writeError(w, r, apierror.New(apierror.KindNotFound, "dataset not found"))
		return nil, nil, false
	}
	t, ok := ds.TableBySnakeName(tableSnake)
	if !ok {
		writeError(w, r, apierror.New(apierror.KindNotFound, "table not found"))
		return nil, nil, false
	}

	granted := grantedScopes(r)
	present := presentParamKeys(r)
	us := scopes.New(granted, s.Profiles.All(), present)

	if !scopes.HasDatasetAccess(us, ds) {
		writeError(w, r, apierror.New(apierror.KindAccessDenied, "not authorized for dataset "+ds.ID))
		return nil, nil, false
	}

	decision, aerr := s.Gate.Authorize(us, ds, t, r.Method, r.URL.Path)
	if aerr != nil {
		writeError(w, r, aerr.WithInstance(r.URL.Path))
		return nil, nil, false
	}

	opts := &qplan.Options{
		Registry: s.Registry,
		Access:   decision.Checker,
		Dataset:  ds,
		Table:    t,
	}
	return &resolved{dataset: ds, table: t, us: us, checker: decision.Checker}, opts, true
}

func grantedScopes(r *http.Request) sdata.ScopeSet {
	v, _ := r.Context().Value(ctxKeyGrantedScopes).(sdata.ScopeSet)
	if v == nil {
		return sdata.NewScopeSet()
	}
	return v
}

func presentParamKeys(r *http.Request) []string {
	q := r.URL.Query()
	out := make([]string, 0, len(q))
	for k := range q {
		if filter.IsReserved(k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// ListTable handles GET /v1/{dataset}/{table}/.
func (s *Server) ListTable(w http.ResponseWriter, r *http.Request) {
	res, opts, ok := s.resolveRequest(w, r)
	if !ok {
		return
	}
	if res.table.Remote != nil {
		s.dispatchRemote(w, r, res, "")
		return
	}

	q := r.URL.Query()
	terms, ferr := filter.Parse(q)
	if ferr != nil {
		writeError(w, r, ferr.WithInstance(r.URL.Path))
		return
	}
	opts.Filters = terms

	format := resolveFormat(r)
	acceptCrs, cerr := resolveAcceptCrs(r, res.table, format)
	if cerr != nil {
		writeError(w, r, cerr.WithInstance(r.URL.Path))
		return
	}
	opts.AcceptCrs = string(acceptCrs)

	if v := q.Get("_sort"); v != "" {
		opts.Sort = append(opts.Sort, splitCommaTrim(v)...)
	}
	if v := q.Get("sorteer"); v != "" {
		opts.Sort = append(opts.Sort, splitCommaTrim(v)...)
	}

	expandReq := serialize.Request{Mode: serialize.ExpandNone}
	if v := q.Get("_expand"); v == "true" {
		opts.ExpandAll = true
		expandReq.Mode = serialize.ExpandAll
	} else if v := q.Get("_expandScope"); v != "" {
		scope := splitCommaTrim(v)
		opts.ExpandScope = scope
		expandReq.Mode = serialize.ExpandScope
		expandReq.ScopePaths = toSet(scope)
	}

	if v := q.Get("_fields"); v != "" {
		opts.FieldsParam = splitCommaTrim(v)
	} else if v := q.Get("fields"); v != "" {
		opts.FieldsParam = splitCommaTrim(v)
	}

	opts.Page = atoiOr(q.Get("page"), 1)
	opts.PageSize = resolvePageSize(q, s.DefaultPageSize, s.MaxPageSize)
	opts.CountRequested = q.Get("_count") == "true"
	// CSV and GeoJSON stream the full cursor unless an explicit page
	// size was requested.
	explicitSize := firstOf(q, "_pageSize", "page_size") != ""
	opts.PaginationDisabled = (format == render.FormatCSV || format == render.FormatGeoJSON) && !explicitSize

	plan, perr := qplan.Plan(*opts)
	if perr != nil {
		writeError(w, r, perr.WithInstance(r.URL.Path))
		return
	}

	if terr := temporal.ApplyToPlan(plan, s.Registry, temporal.Request{Query: q}); terr != nil {
		writeError(w, r, terr.WithInstance(r.URL.Path))
		return
	}

	s.runPlan(w, r, res, plan, format, acceptCrs, expandReq)
}

// GetRow handles GET /v1/{dataset}/{table}/{id}/.
func (s *Server) GetRow(w http.ResponseWriter, r *http.Request) {
	res, opts, ok := s.resolveRequest(w, r)
	if !ok {
		return
	}
	if res.table.Remote != nil {
		s.dispatchRemote(w, r, res, chi.URLParam(r, "id"))
		return
	}

	id := chi.URLParam(r, "id")
	terms, ierr := identifierTerms(res.table, id)
	if ierr != nil {
		writeError(w, r, ierr.WithInstance(r.URL.Path))
		return
	}
	opts.Filters = terms
	opts.PaginationDisabled = true
	opts.PageSize = 1

	q := r.URL.Query()
	format := resolveFormat(r)
	acceptCrs, cerr := resolveAcceptCrs(r, res.table, format)
	if cerr != nil {
		writeError(w, r, cerr.WithInstance(r.URL.Path))
		return
	}
	opts.AcceptCrs = string(acceptCrs)

	expandReq := serialize.Request{Mode: serialize.ExpandAll}
	opts.ExpandAll = true

	plan, perr := qplan.Plan(*opts)
	if perr != nil {
		writeError(w, r, perr.WithInstance(r.URL.Path))
		return
	}
	if terr := temporal.ApplyToPlan(plan, s.Registry, temporal.Request{Query: q}); terr != nil {
		writeError(w, r, terr.WithInstance(r.URL.Path))
		return
	}

	s.runSingle(w, r, res, plan, expandReq)
}

// identifierTerms builds the exact-match filter term(s) for a table's
// composite or single-part identifier from the URL's {id} segment,
// splitting on "." for composites. A temporal table's URL id is the
// logical identifier alone; the sequence arrives as a query parameter.
func identifierTerms(t *sdata.Table, id string) ([]filter.Term, *apierror.Error) {
	idFields := t.Identifier
	if t.IsTemporal() {
		logical := make([]string, 0, len(idFields))
		for _, f := range idFields {
			if f == t.Temporal.SequenceField {
				continue
			}
			logical = append(logical, f)
		}
		if len(logical) > 0 {
			idFields = logical
		}
	}

	if len(idFields) == 1 {
		return []filter.Term{{Key: idFields[0], Path: []string{idFields[0]}, RawValues: []string{id}}}, nil
	}
	parts := splitDottedID(id)
	if len(parts) != len(idFields) {
		return nil, apierror.Newf(apierror.KindNotFound, "malformed composite identifier %q", id)
	}
	terms := make([]filter.Term, 0, len(parts))
	for i, idField := range idFields {
		terms = append(terms, filter.Term{Key: idField, Path: []string{idField}, RawValues: []string{parts[i]}})
	}
	return terms, nil
}

func splitDottedID(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func (s *Server) runPlan(w http.ResponseWriter, r *http.Request, res *resolved, plan *qplan.QueryPlan, format render.Format, acceptCrs geo.CRS, expandReq serialize.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	var total *int64
	if plan.Pagination.CountRequested {
		n, err := s.DB.Count(ctx, plan)
		if err != nil {
			writeError(w, r, apierror.Wrap(apierror.KindInternal, err).WithInstance(r.URL.Path))
			return
		}
		total = &n
	}

	cur, err := s.DB.Query(ctx, plan)
	if err != nil {
		writeError(w, r, apierror.Wrap(apierror.KindInternal, err).WithInstance(r.URL.Path))
		return
	}
	defer cur.Close()

	rows := newRowSource(ctx, cur, s.DB, s.Registry, plan.Prefetch, s.Prefetch)
	s.stream(w, r, res, plan, format, acceptCrs, expandReq, rows, total)
}

func (s *Server) runSingle(w http.ResponseWriter, r *http.Request, res *resolved, plan *qplan.QueryPlan, expandReq serialize.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	cur, err := s.DB.Query(ctx, plan)
	if err != nil {
		writeError(w, r, apierror.Wrap(apierror.KindInternal, err).WithInstance(r.URL.Path))
		return
	}
	defer cur.Close()

	rows := newRowSource(ctx, cur, s.DB, s.Registry, plan.Prefetch, s.Prefetch)
	row, nerr := rows.Next(ctx)
	if nerr != nil {
		writeError(w, r, apierror.Wrap(apierror.KindInternal, nerr).WithInstance(r.URL.Path))
		return
	}
	if row == nil {
		writeError(w, r, apierror.New(apierror.KindNotFound, "not found").WithInstance(r.URL.Path))
		return
	}

	builder := &serialize.Builder{Registry: s.Registry, Gate: s.Gate, US: res.us, BaseURL: s.BaseURL}
	out, berr := builder.BuildRow(res.dataset, res.table, row, expandReq, 0)
	if berr != nil {
		writeError(w, r, berr.WithInstance(r.URL.Path))
		return
	}

	w.Header().Set("Content-Type", "application/hal+json; charset=utf-8")
	writeJSON(w, out)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, res *resolved, plan *qplan.QueryPlan, format render.Format, acceptCrs geo.CRS, expandReq serialize.Request, rows render.RowSource, total *int64) {
	builder := &serialize.Builder{Registry: s.Registry, Gate: s.Gate, US: res.us, BaseURL: s.BaseURL}
	renderer := render.ByFormat(format)

	in := render.Input{
		Plan: plan, Rows: rows, Builder: builder, ExpandReq: expandReq,
		BaseURL: s.BaseURL, SelfHref: r.URL.String(), TotalCount: total,
		AcceptCrs: acceptCrs,
	}

	h := w.Header()
	h.Set("Content-Type", renderer.ContentType())
	if !plan.Pagination.Disabled {
		h.Set("X-Pagination-Page", strconv.Itoa(plan.Pagination.Page))
		h.Set("X-Pagination-Limit", strconv.Itoa(plan.Pagination.Size))
	}
	if total != nil {
		h.Set("X-Pagination-Count", strconv.FormatInt(*total, 10))
		h.Set("X-Total-Count", strconv.FormatInt(*total, 10))
	}
	switch format {
	case render.FormatCSV:
		h.Set("Content-Disposition", `attachment; filename="`+sdata.SnakeName(plan.Table.ID)+`.csv"`)
	case render.FormatGeoJSON:
		crs := acceptCrs
		if crs == "" {
			crs = geo.WGS84
		}
		h.Set("Content-Crs", string(crs))
	default:
		if acceptCrs != "" {
			h.Set("Content-Crs", string(acceptCrs))
		}
	}

	if rerr := renderer.Render(r.Context(), w, in); rerr != nil {
		writeError(w, r, rerr.WithInstance(r.URL.Path))
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if _, ok := r.Context().Deadline(); ok {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), defaultQueryTimeout)
}

func splitCommaTrim(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func resolvePageSize(q map[string][]string, def, max int) int {
	raw := firstOf(q, "_pageSize", "page_size")
	n := atoiOr(raw, def)
	if max > 0 && n > max {
		n = max
	}
	return n
}

func firstOf(q map[string][]string, keys ...string) string {
	for _, k := range keys {
		if vs, ok := q[k]; ok && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}
