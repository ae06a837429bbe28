package render_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/authz"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/serialize"
	"github.com/amsterdam/dso-gateway/internal/store"
)

type fakeCursor struct {
	rows []*store.Row
	i    int
}

func (c *fakeCursor) Next(ctx context.Context) (*store.Row, error) {
	if c.i >= len(c.rows) {
		return nil, nil
	}
	r := c.rows[c.i]
	c.i++
	return r, nil
}

func parkeervakkenTable() (*sdata.Registry, *sdata.Dataset, *sdata.Table) {
	geomField := "geometrie"
	tbl := &sdata.Table{
		ID: "parkeervakken", Identifier: []string{"id"},
		Fields: []*sdata.Field{
			{ID: "id", IsIdentifierPart: true, Type: sdata.TypeString},
			{ID: "soort", Type: sdata.TypeString},
			{ID: geomField, Type: sdata.TypeGeoPoint},
		},
		MVT: &sdata.MVTDescriptor{GeometryField: geomField, HighZoomThreshold: 14},
	}
	ds := &sdata.Dataset{ID: "parkeren", Status: sdata.StatusBeschikbaar, Tables: []*sdata.Table{tbl}}
	reg, _ := sdata.NewRegistry(fixedLoaderFn(func() ([]*sdata.Dataset, error) { return []*sdata.Dataset{ds}, nil }))
	return reg, ds, tbl
}

type fixedLoaderFn func() ([]*sdata.Dataset, error)

func (f fixedLoaderFn) Load() ([]*sdata.Dataset, error) { return f() }

func builderFor(reg *sdata.Registry) *serialize.Builder {
	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	return &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}
}

func TestHALRendererDetectsNextPage(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds, Pagination: qplan.Pagination{Page: 1, Size: 1}}

	r1, r2 := store.NewRow(), store.NewRow()
	r1.Values["id"] = "1"
	r2.Values["id"] = "2"
	cur := &fakeCursor{rows: []*store.Row{r1, r2}}

	var buf bytes.Buffer
	err := render.HALRenderer{}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		ExpandReq: serialize.Request{Mode: serialize.ExpandNone},
		SelfHref:  "https://api.example.test/v1/parkeren/parkeervakken/",
	})
	require.Nil(t, err)
	assert.Contains(t, buf.String(), `"next"`)
	assert.Contains(t, buf.String(), `?page=2`)
}

func TestCSVRendererWritesCapitalizedHeaderAndRow(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds, Pagination: qplan.Pagination{Disabled: true}}

	row := store.NewRow()
	row.Values["id"] = "1"
	row.Values["soort"] = "FISCAAL"
	cur := &fakeCursor{rows: []*store.Row{row}}

	var buf bytes.Buffer
	err := render.CSVRenderer{}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		ExpandReq: serialize.Request{Mode: serialize.ExpandNone},
		SelfHref:  "https://api.example.test/v1/parkeren/parkeervakken/",
	})
	require.Nil(t, err)
	out := buf.String()
	assert.Contains(t, out, "Id,Soort")
	assert.Contains(t, out, "1,FISCAAL")
}

func TestGeoJSONRendererReprojectsToWGS84(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds}

	row := store.NewRow()
	row.Values["id"] = "1"
	row.Values["soort"] = "FISCAAL"
	row.Values["geometrie"] = orb.Point{121700, 487800} // RD coordinate near central Amsterdam
	cur := &fakeCursor{rows: []*store.Row{row}}

	var buf bytes.Buffer
	err := render.GeoJSONRenderer{SourceCRS: geo.RD}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		ExpandReq: serialize.Request{Mode: serialize.ExpandNone},
		SelfHref:  "https://api.example.test/v1/parkeren/parkeervakken/",
		AcceptCrs: geo.WGS84,
	})
	require.Nil(t, err)
	out := buf.String()
	assert.Contains(t, out, `"FeatureCollection"`)
	assert.Contains(t, out, `"EPSG:4326"`)
}

func TestMVTRendererReturns204OnEmptyTile(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds}
	cur := &fakeCursor{rows: nil}

	status := 200
	var buf bytes.Buffer
	err := render.MVTRenderer{}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		TileZ: 12, TileX: 2109, TileY: 1364, Status: &status,
	})
	require.Nil(t, err)
	assert.Equal(t, 204, status)
	assert.Equal(t, 0, buf.Len())
}

func TestMVTRendererEncodesFeatureWithZoomFilteredProperties(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds}

	row := store.NewRow()
	row.Values["id"] = "1"
	row.Values["soort"] = "FISCAAL"
	row.Values["geometrie"] = orb.Point{121700, 487800} // RD, central Amsterdam
	cur := &fakeCursor{rows: []*store.Row{row}}

	status := 200
	var buf bytes.Buffer
	err := render.MVTRenderer{}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		TileZ: 16, TileX: 33640, TileY: 21813, Status: &status,
	})
	require.Nil(t, err)
	assert.Equal(t, 200, status)
	assert.NotZero(t, buf.Len())
}

func TestMVTRendererExcludesInaccessibleProperties(t *testing.T) {
	reg, ds, tbl := parkeervakkenTable()
	// "soort" now requires a scope the caller does not hold; the other
	// fields stay public.
	for _, f := range tbl.Fields {
		if f.ID == "soort" {
			f.Auth = sdata.NewScopeSet("FP/MDW")
		}
	}
	plan := &qplan.QueryPlan{Table: tbl, Dataset: ds}

	row := store.NewRow()
	row.Values["id"] = "1"
	row.Values["soort"] = "FISCAAL"
	row.Values["geometrie"] = orb.Point{121700, 487800}
	cur := &fakeCursor{rows: []*store.Row{row}}

	status := 200
	var buf bytes.Buffer
	err := render.MVTRenderer{}.Render(context.Background(), &buf, render.Input{
		Plan: plan, Rows: cur, Builder: builderFor(reg),
		TileZ: 16, TileX: 33640, TileY: 21813, Status: &status,
	})
	require.Nil(t, err)
	assert.NotZero(t, buf.Len())
	assert.NotContains(t, buf.String(), "FISCAAL", "an unreadable property must never enter the tile")
}
