package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/geo"
)

func TestParsePointLiteralCommaForm(t *testing.T) {
	pt, err := geo.ParsePointLiteral("4.895,52.370")
	require.NoError(t, err)
	assert.InDelta(t, 4.895, pt[0], 1e-9)
	assert.InDelta(t, 52.370, pt[1], 1e-9)
}

func TestParsePointLiteralWKT(t *testing.T) {
	pt, err := geo.ParsePointLiteral("POINT(4.895 52.370)")
	require.NoError(t, err)
	assert.InDelta(t, 4.895, pt[0], 1e-9)
	assert.InDelta(t, 52.370, pt[1], 1e-9)
}

func TestDetectCRS_WGS84LatLon(t *testing.T) {
	crs, pt, ok := geo.DetectCRS(52.370, 4.895)
	require.True(t, ok)
	assert.Equal(t, geo.WGS84, crs)
	// reordered to (lon, lat)
	assert.InDelta(t, 4.895, pt[0], 1e-9)
	assert.InDelta(t, 52.370, pt[1], 1e-9)
}

func TestDetectCRS_RD(t *testing.T) {
	crs, pt, ok := geo.DetectCRS(123207, 486624)
	require.True(t, ok)
	assert.Equal(t, geo.RD, crs)
	assert.InDelta(t, 123207, pt[0], 1e-9)
}

func TestDetectCRS_Ambiguous(t *testing.T) {
	_, _, ok := geo.DetectCRS(1, 1)
	assert.False(t, ok)
}

func TestTransformRDRoundTrip(t *testing.T) {
	rd, err := geo.ParsePointLiteral("123207,486624")
	require.NoError(t, err)

	wgs, err := geo.Transform(rd, geo.RD, geo.WGS84)
	require.NoError(t, err)
	// Known approximate location: Amsterdam area.
	assert.InDelta(t, 52.37, wgs[1], 0.05)
	assert.InDelta(t, 4.89, wgs[0], 0.05)

	back, err := geo.Transform(wgs, geo.WGS84, geo.RD)
	require.NoError(t, err)
	assert.InDelta(t, rd[0], back[0], 10)
	assert.InDelta(t, rd[1], back[1], 10)
}

func TestParseCRS(t *testing.T) {
	crs, err := geo.ParseCRS("epsg:28992")
	require.NoError(t, err)
	assert.Equal(t, geo.RD, crs)

	_, err = geo.ParseCRS("EPSG:9999")
	assert.Error(t, err)
}
