// Package render streams the serializer tree into HAL-JSON, CSV,
// GeoJSON, or Mapbox Vector Tiles, consuming a lazy row sequence so a
// large result set never has to fit in memory at once.
package render

import (
	"context"
	"io"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/geo"
	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/serialize"
	"github.com/amsterdam/dso-gateway/internal/store"
)

// RowSource is the lazy row sequence every renderer consumes — a thin
// wrapper over *store.Cursor that applies per-chunk relation prefetch
// before handing rows to the renderer.
type RowSource interface {
	Next(ctx context.Context) (*store.Row, error)
}

// Format identifies a renderer, selected by Accept header or ?_format=.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatGeoJSON Format = "geojson"
	FormatMVT     Format = "mvt"
)

// Renderer streams plan's result set to w.
type Renderer interface {
	ContentType() string
	Render(ctx context.Context, w io.Writer, in Input) *apierror.Error
}

// Input bundles everything a Renderer needs to stream a response.
type Input struct {
	Plan       *qplan.QueryPlan
	Rows       RowSource
	Builder    *serialize.Builder
	ExpandReq  serialize.Request
	BaseURL    string
	SelfHref   string
	TotalCount *int64 // set when ?_count=true was requested

	// AcceptCrs is the negotiated output CRS for geometry-carrying
	// formats; GeoJSON falls back to WGS84 when unset.
	AcceptCrs geo.CRS

	// TileZ/TileX/TileY address the requested tile for FormatMVT;
	// ignored by every other renderer.
	TileZ, TileX, TileY int

	// Status lets a renderer override the default 200 (MVT's empty-tile
	// 204). Left nil/zero, the caller assumes 200.
	Status *int
}

// ByFormat resolves the renderer for a requested format.
func ByFormat(f Format) Renderer {
	switch f {
	case FormatCSV:
		return &CSVRenderer{}
	case FormatGeoJSON:
		return &GeoJSONRenderer{}
	case FormatMVT:
		return &MVTRenderer{}
	default:
		return &HALRenderer{}
	}
}
