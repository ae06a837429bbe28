package render

import (
	"context"
	"encoding/json"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// GeoJSONRenderer emits a FeatureCollection with a crs member, the
// server geometry reprojected to the request's Accept-Crs (default
// WGS84), and every non-geometry field as a property. Pagination is
// off unless an explicit page size was requested.
type GeoJSONRenderer struct {
	SourceCRS geo.CRS // CRS the geometry column is stored in; defaults to RD
}

func (GeoJSONRenderer) ContentType() string { return "application/geo+json; charset=utf-8" }

func (r GeoJSONRenderer) Render(ctx context.Context, w io.Writer, in Input) *apierror.Error {
	target := in.AcceptCrs
	if target == "" {
		target = geo.WGS84
	}
	source := r.SourceCRS
	if source == "" {
		source = geo.RD
	}

	fc := geojson.NewFeatureCollection()
	geomField := geometryField(in.Plan.Table)
	if geomField == "" {
		return apierror.Newf(apierror.KindNotAcceptable,
			"table %q has no geometry field to render as GeoJSON", in.Plan.Table.ID)
	}

	for {
		row, rerr := in.Rows.Next(ctx)
		if rerr != nil {
			return apierror.Wrap(apierror.KindInternal, rerr)
		}
		if row == nil {
			break
		}
		if !in.Plan.Pagination.Disabled && in.Plan.Pagination.Size > 0 && len(fc.Features) >= in.Plan.Pagination.Size {
			break // the extra look-ahead row fetched for next-page detection
		}
		rendered, berr := in.Builder.BuildRow(in.Plan.Dataset, in.Plan.Table, row, in.ExpandReq, 0)
		if berr != nil {
			return berr
		}

		feature := geojson.NewFeature(nil)
		if id, ok := row.Get("id"); ok {
			feature.ID = id
		}
		feature.Properties = geojson.Properties{}
		for k, v := range rendered {
			if k == "_links" || k == "_embedded" || k == geomField {
				continue
			}
			feature.Properties[k] = v
		}

		if geomField != "" {
			if raw, ok := row.Get(geomField); ok {
				if pt, ok := raw.(orb.Point); ok {
					reproj, terr := geo.Transform(pt, source, target)
					if terr == nil {
						feature.Geometry = reproj
					}
				}
			}
		}

		fc.Features = append(fc.Features, feature)
	}

	body := map[string]any{
		"type": "FeatureCollection",
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": string(target)},
		},
		"features": fc.Features,
		"_links":   []map[string]any{{"rel": "self", "href": in.SelfHref}},
	}
	return wrapEncode(w, body)
}

func geometryField(t *sdata.Table) string {
	for _, f := range t.Fields {
		if f.Type.IsGeo() {
			return f.ID
		}
	}
	return ""
}

func wrapEncode(w io.Writer, v any) *apierror.Error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return apierror.Wrap(apierror.KindInternal, err)
	}
	return nil
}
