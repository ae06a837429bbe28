package httpapi

import (
	"net/http"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// formatAliases holds the legacy synonyms: "?format=csv"
// and the short names accepted alongside the Accept header/_format.
var formatAliases = map[string]render.Format{
	"json":      render.FormatJSON,
	"hal":       render.FormatJSON,
	"csv":       render.FormatCSV,
	"geojson":   render.FormatGeoJSON,
	"mvt":       render.FormatMVT,
	"pbf":       render.FormatMVT,
	"vnd.mapbox-vector-tile": render.FormatMVT,
}

// resolveFormat negotiates the response format: ?_format
// (or the legacy ?format) wins outright, otherwise the Accept header is
// checked for the CSV, GeoJSON and vector-tile media types, defaulting
// to HAL-JSON.
func resolveFormat(r *http.Request) render.Format {
	if v := r.URL.Query().Get("_format"); v != "" {
		if f, ok := formatAliases[strings.ToLower(v)]; ok {
			return f
		}
	}
	if v := r.URL.Query().Get("format"); v != "" {
		if f, ok := formatAliases[strings.ToLower(v)]; ok {
			return f
		}
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/csv"):
		return render.FormatCSV
	case strings.Contains(accept, "application/geo+json"):
		return render.FormatGeoJSON
	case strings.Contains(accept, "vnd.mapbox-vector-tile"):
		return render.FormatMVT
	default:
		return render.FormatJSON
	}
}

// resolveAcceptCrs negotiates the output reference system: a
// HAL/CSV response carrying a geometry field requires an explicit
// Accept-Crs, since neither format has a defined default projection the
// way GeoJSON (WGS84) and MVT (tile-local Web Mercator) do.
func resolveAcceptCrs(r *http.Request, t *sdata.Table, format render.Format) (geo.CRS, *apierror.Error) {
	raw := r.Header.Get("Accept-Crs")
	if raw == "" {
		raw = r.URL.Query().Get("_acceptCrs")
	}

	if raw == "" {
		if format == render.FormatJSON || format == render.FormatCSV {
			if hasGeometry(t) {
				return geo.UnknownCRS, apierror.New(apierror.KindPreconditionFailed,
					"Accept-Crs header is required for a table with a geometry field")
			}
		}
		return geo.UnknownCRS, nil
	}

	crs, err := geo.ParseCRS(raw)
	if err != nil {
		return geo.UnknownCRS, apierror.New(apierror.KindNotAcceptable, err.Error())
	}
	return crs, nil
}

func hasGeometry(t *sdata.Table) bool {
	for _, f := range t.Fields {
		if f.Type.IsGeo() {
			return true
		}
	}
	return false
}
