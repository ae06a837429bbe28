package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/value"
)

func TestParseBool(t *testing.T) {
	for _, ok := range []string{"true", "True", "1"} {
		v, err := value.ParseBool(ok)
		require.NoError(t, err)
		assert.True(t, v)
	}
	for _, ok := range []string{"false", "False", "0"} {
		v, err := value.ParseBool(ok)
		require.NoError(t, err)
		assert.False(t, v)
	}
	_, err := value.ParseBool("yes")
	assert.ErrorIs(t, err, value.ErrInvalidValue)
}

func TestParseNumberRejectsExponentAndSign(t *testing.T) {
	_, err := value.ParseNumber("1e10")
	assert.Error(t, err)
	_, err = value.ParseNumber("-5")
	assert.Error(t, err)
	n, err := value.ParseNumber("5.25")
	require.NoError(t, err)
	assert.Equal(t, 5.25, n)
}

func TestParseDateStrict(t *testing.T) {
	_, err := value.ParseDate("2020-01-fubar")
	assert.ErrorIs(t, err, value.ErrInvalidValue)
	d, err := value.ParseDate("2020-01-02")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02", value.FormatDate(d))
}

func TestParseDateTimeDateOnlyPromotesToRange(t *testing.T) {
	dt, err := value.ParseDateTime("2020-01-02")
	require.NoError(t, err)
	assert.True(t, dt.DateOnly)
	assert.Equal(t, "2020-01-03", value.FormatDate(dt.RangeEnd))
}

func TestParseDateTimeInvalid(t *testing.T) {
	_, err := value.ParseDateTime("2020-01-fubar")
	assert.ErrorIs(t, err, value.ErrInvalidValue)
}

func TestParseTimeVariants(t *testing.T) {
	for _, raw := range []string{"20:05", "20:05:00", "20:05:00.123"} {
		_, err := value.ParseTime(raw)
		assert.NoError(t, err, raw)
	}
}

func TestParsePointCommaAndWKT(t *testing.T) {
	pt1, crs1, err := value.ParsePoint("4.895,52.370", "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", string(crs1))

	pt2, crs2, err := value.ParsePoint("POINT(123207 486624)", "EPSG:28992")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:28992", string(crs2))
	assert.NotEqual(t, pt1, pt2)
}

func TestParsePointAutoDetect(t *testing.T) {
	_, crs, err := value.ParsePoint("52.370,4.895", "")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", string(crs))

	_, crs, err = value.ParsePoint("123207,486624", "")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:28992", string(crs))

	_, _, err = value.ParsePoint("1,1", "")
	assert.ErrorIs(t, err, value.ErrInvalidCoordinate)
}

func TestSplitArray(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, value.SplitArray("a,b,c", false))
	assert.Equal(t, []string{"a,b,c"}, value.SplitArray("a,b,c", true))
}
