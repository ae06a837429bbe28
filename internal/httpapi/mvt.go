package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/filter"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/serialize"
	"github.com/amsterdam/dso-gateway/internal/store"
	"github.com/amsterdam/dso-gateway/internal/temporal"
)

// Tile handles GET /v1/mvt/{dataset}/{table}/{z}/{x}/{y}.pbf. The
// geometry-in-bbox test runs in this layer rather than as SQL, so it
// works uniformly across the local SQL dialects without a
// dialect-specific spatial predicate.
func (s *Server) Tile(w http.ResponseWriter, r *http.Request) {
	res, opts, ok := s.resolveRequest(w, r)
	if !ok {
		return
	}
	if res.table.MVT == nil {
		writeError(w, r, apierror.New(apierror.KindNotFound, "table is not a tile source").WithInstance(r.URL.Path))
		return
	}

	// the geometry column must be readable; a tile of an invisible
	// geometry would leak location data field-level auth denies.
	if gf, ok := res.table.Field(res.table.MVT.GeometryField); ok {
		if !s.Gate.FieldVisibility(res.us, res.dataset, res.table, gf).Granted() {
			writeError(w, r, apierror.New(apierror.KindAccessDenied, "geometry field not accessible").WithInstance(r.URL.Path))
			return
		}
	}

	z, zerr := strconv.Atoi(chi.URLParam(r, "z"))
	x, xerr := strconv.Atoi(chi.URLParam(r, "x"))
	y, yerr := strconv.Atoi(chi.URLParam(r, "y"))
	if zerr != nil || xerr != nil || yerr != nil {
		writeError(w, r, apierror.New(apierror.KindInvalidValue, "tile coordinates must be integers").WithInstance(r.URL.Path))
		return
	}

	q := r.URL.Query()
	terms, ferr := filter.Parse(q)
	if ferr != nil {
		writeError(w, r, ferr.WithInstance(r.URL.Path))
		return
	}
	opts.Filters = terms
	opts.PaginationDisabled = true

	plan, perr := qplan.Plan(*opts)
	if perr != nil {
		writeError(w, r, perr.WithInstance(r.URL.Path))
		return
	}
	if terr := temporal.ApplyToPlan(plan, s.Registry, temporal.Request{Query: q}); terr != nil {
		writeError(w, r, terr.WithInstance(r.URL.Path))
		return
	}

	bound, berr := render.TileBBox(z, x, y, geo.RD)
	if berr != nil {
		writeError(w, r, apierror.Wrap(apierror.KindInternal, berr).WithInstance(r.URL.Path))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	cur, err := s.DB.Query(ctx, plan)
	if err != nil {
		writeError(w, r, apierror.Wrap(apierror.KindInternal, err).WithInstance(r.URL.Path))
		return
	}
	defer cur.Close()

	rows := newRowSource(ctx, cur, s.DB, s.Registry, plan.Prefetch, s.Prefetch)
	clipped := &bboxRowSource{inner: rows, geomField: res.table.MVT.GeometryField, bound: bound}

	status := http.StatusOK
	in := render.Input{
		Plan: plan, Rows: clipped, Builder: &serialize.Builder{Registry: s.Registry, Gate: s.Gate, US: res.us, BaseURL: s.BaseURL},
		ExpandReq: serialize.Request{}, BaseURL: s.BaseURL, SelfHref: r.URL.String(),
		TileZ: z, TileX: x, TileY: y, Status: &status,
	}

	renderer := render.MVTRenderer{}
	w.Header().Set("Content-Type", renderer.ContentType())
	if rerr := renderer.Render(ctx, w, in); rerr != nil {
		writeError(w, r, rerr.WithInstance(r.URL.Path))
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
}

// TileJSON handles GET /v1/mvt/{dataset}/tilejson.json: one layer per
// tile-enabled table of the dataset.
func (s *Server) TileJSON(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset")
	ds, ok := s.Registry.GetDataset(datasetID)
	if !ok {
		writeError(w, r, apierror.New(apierror.KindNotFound, "dataset not found"))
		return
	}

	type layer struct {
		ID      string `json:"id"`
		Tiles   string `json:"tiles"`
		MinZoom int    `json:"minzoom"`
		MaxZoom int    `json:"maxzoom"`
	}
	var layers []layer
	for _, t := range ds.Tables {
		if t.MVT == nil {
			continue
		}
		layers = append(layers, layer{
			ID:      t.ID,
			Tiles:   fmt.Sprintf("%s/mvt/%s/%s/{z}/{x}/{y}.pbf", s.BaseURL, ds.ID, t.ID),
			MinZoom: t.MVT.MinZoom,
			MaxZoom: t.MVT.MaxZoom,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tilejson": "3.0.0",
		"name":     ds.Title,
		"layers":   layers,
	})
}

// bboxRowSource filters an underlying RowSource down to rows whose
// geometry field falls inside bound, in native-CRS (RD) coordinates.
type bboxRowSource struct {
	inner     render.RowSource
	geomField string
	bound     orb.Bound
}

func (b *bboxRowSource) Next(ctx context.Context) (*store.Row, error) {
	for {
		row, err := b.inner.Next(ctx)
		if err != nil || row == nil {
			return row, err
		}
		raw, ok := row.Get(b.geomField)
		if !ok {
			continue
		}
		pt, ok := raw.(orb.Point)
		if !ok || !b.bound.Contains(pt) {
			continue
		}
		return row, nil
	}
}
