package render

import (
	"context"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/geo"
)

// MVTRenderer encodes one Mapbox Vector Tile. Filters, authorization
// and the temporal slice are already baked into in.Plan by the caller,
// so Render only walks the rows the cursor yields, applies zoom-window
// visibility, and encodes the layer. An empty tile becomes a 204.
type MVTRenderer struct{}

func (MVTRenderer) ContentType() string { return "application/vnd.mapbox-vector-tile" }

func (MVTRenderer) Render(ctx context.Context, w io.Writer, in Input) *apierror.Error {
	table := in.Plan.Table
	if table.MVT == nil {
		return apierror.Newf(apierror.KindNotFound, "table %q is not registered as a tile source", table.ID)
	}

	tile := maptile.New(uint32(in.TileX), uint32(in.TileY), maptile.Zoom(in.TileZ))
	zoom := in.TileZ

	geomField := table.MVT.GeometryField
	idField := table.MVT.IdentifierField
	if idField == "" && len(table.Identifier) == 1 {
		idField = table.Identifier[0]
	}

	fc := geojson.NewFeatureCollection()

	for {
		row, rerr := in.Rows.Next(ctx)
		if rerr != nil {
			return apierror.Wrap(apierror.KindInternal, rerr)
		}
		if row == nil {
			break
		}

		raw, ok := row.Get(geomField)
		if !ok {
			continue
		}
		pt, ok := raw.(orb.Point)
		if !ok {
			continue
		}
		// geometry is stored in RD; tile encoding wants WGS84 before
		// projection into tile-local coordinates.
		wgs, terr := geo.Transform(pt, geo.RD, geo.WGS84)
		if terr != nil {
			continue
		}

		feature := geojson.NewFeature(wgs)
		if idField != "" {
			if id, ok := row.Get(idField); ok {
				feature.ID = id
			}
		}
		feature.Properties = geojson.Properties{}
		for _, f := range table.Fields {
			if f.ID == geomField || f.IsRelation() {
				continue
			}
			if !f.VisibleAtZoom(zoom, table.MVT.HighZoomThreshold) {
				continue
			}
			// same field-level gate every other renderer goes through:
			// a property the caller may not read never enters the tile.
			perm := in.Builder.Gate.FieldVisibility(in.Builder.US, in.Plan.Dataset, table, f)
			if !perm.Granted() {
				continue
			}
			if v, ok := row.Get(f.ID); ok {
				if s, isStr := v.(string); isStr {
					feature.Properties[f.ID] = perm.Apply(s)
				} else {
					feature.Properties[f.ID] = v
				}
			}
		}
		fc.Features = append(fc.Features, feature)
	}

	if len(fc.Features) == 0 {
		if in.Status != nil {
			*in.Status = 204
		}
		return nil
	}

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{table.ID: fc})
	layers.ProjectToTile(tile)

	data, err := mvt.Marshal(layers)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, err)
	}
	if _, werr := w.Write(data); werr != nil {
		return apierror.Wrap(apierror.KindInternal, werr)
	}
	return nil
}

// TileBBox computes the tile's bounding box in the table's native
// geometry CRS (RD by convention) for the caller to apply as a bbox
// clip before Render is invoked.
func TileBBox(z, x, y int, nativeCRS geo.CRS) (orb.Bound, error) {
	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	bound := tile.Bound() // WGS84 lon/lat
	if nativeCRS == geo.WGS84 || nativeCRS == geo.UnknownCRS {
		return bound, nil
	}
	min, err := geo.Transform(bound.Min, geo.WGS84, nativeCRS)
	if err != nil {
		return orb.Bound{}, err
	}
	max, err := geo.Transform(bound.Max, geo.WGS84, nativeCRS)
	if err != nil {
		return orb.Bound{}, err
	}
	return orb.Bound{Min: min, Max: max}, nil
}
