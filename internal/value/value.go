// Package value implements the strict, locale-free query-string value
// parser for every Amsterdam Schema scalar type.
package value

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/amsterdam/dso-gateway/internal/geo"
)

// Kind mirrors sdata.FieldType but lives in this package to keep the
// parser importable without pulling in the schema registry.
type Kind string

const (
	KindBool     Kind = "boolean"
	KindInteger  Kind = "integer"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindDateTime Kind = "date-time"
	KindTime     Kind = "time"
	KindString   Kind = "string"
	KindURI      Kind = "uri"
	KindGeoPoint Kind = "geo:Point"
	KindGeoPoly  Kind = "geo:Polygon"
)

// ErrInvalidValue is returned (wrapped with the offending field/raw
// value context by the caller) when raw input does not match the
// scalar's strict grammar.
var ErrInvalidValue = fmt.Errorf("invalid value")

// ErrInvalidCoordinate is returned by ParsePoint when a coordinate pair
// cannot be unambiguously assigned a CRS.
var ErrInvalidCoordinate = fmt.Errorf("invalid coordinate")

var numberRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
var integerRe = regexp.MustCompile(`^-?[0-9]+$`)

// ParseBool accepts true|1|false|0, case-insensitive.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a valid boolean", ErrInvalidValue, raw)
	}
}

// ParseNumber accepts digits with an optional decimal
// point; no sign, exponent, NaN or Inf.
func ParseNumber(raw string) (float64, error) {
	if !numberRe.MatchString(raw) {
		return 0, fmt.Errorf("%w: %q is not a valid number", ErrInvalidValue, raw)
	}
	return strconv.ParseFloat(raw, 64)
}

// ParseInteger is the integer-typed sibling of ParseNumber.
func ParseInteger(raw string) (int64, error) {
	if !integerRe.MatchString(raw) {
		return 0, fmt.Errorf("%w: %q is not a valid integer", ErrInvalidValue, raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ParseDate accepts strict YYYY-MM-DD.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: Enter a valid ISO date-time, or single date.", ErrInvalidValue)
	}
	return t, nil
}

// DateTimeValue is the result of parsing a date-time filter value: a
// single instant, or — when the input was date-only — a day-bounded
// range the planner must turn into a BETWEEN-style predicate.
type DateTimeValue struct {
	Instant    time.Time
	DateOnly   bool
	RangeStart time.Time
	RangeEnd   time.Time
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDateTime accepts full ISO-8601, or a bare
// YYYY-MM-DD promoted to a day-bounded range.
func ParseDateTime(raw string) (DateTimeValue, error) {
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		start := d
		end := d.AddDate(0, 0, 1)
		return DateTimeValue{Instant: d, DateOnly: true, RangeStart: start, RangeEnd: end}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return DateTimeValue{Instant: t}, nil
		}
	}
	return DateTimeValue{}, fmt.Errorf("%w: Enter a valid ISO date-time, or single date.", ErrInvalidValue)
}

var timeLayouts = []string{"15:04:05.000", "15:04:05", "15:04"}

// ParseTime accepts HH:MM, HH:MM:SS, HH:MM:SS.fff.
func ParseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a valid time", ErrInvalidValue, raw)
}

// ParsePoint parses a point literal with CRS handling:
// acceptCrs is the request's Accept-Crs header (empty if absent), in
// which case the coordinates are auto-detected against the NL WGS84 and
// Dutch RD bounding boxes.
func ParsePoint(raw string, acceptCrs string) (orb.Point, geo.CRS, error) {
	pt, err := geo.ParsePointLiteral(raw)
	if err != nil {
		return orb.Point{}, geo.UnknownCRS, fmt.Errorf("%w: %s", ErrInvalidCoordinate, err)
	}

	if acceptCrs != "" {
		crs, err := geo.ParseCRS(acceptCrs)
		if err != nil {
			return orb.Point{}, geo.UnknownCRS, err
		}
		return pt, crs, nil
	}

	crs, detected, ok := geo.DetectCRS(pt[0], pt[1])
	if !ok {
		return orb.Point{}, geo.UnknownCRS, ErrInvalidCoordinate
	}
	return detected, crs, nil
}

// SplitArray splits an array-typed filter value: comma
// separated, unless naturallyRepeated is true (the lookup already
// accepts repeated query keys, e.g. `in`/`not`, in which case the
// caller has already collapsed repeats and a single raw value should
// not also be comma-split).
func SplitArray(raw string, naturallyRepeated bool) []string {
	if naturallyRepeated {
		return []string{raw}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// FormatBool, FormatDate, FormatDateTime and FormatTime render a value
// back to its canonical wire string, the inverse of the Parse* functions
// above.
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func FormatDate(t time.Time) string { return t.Format("2006-01-02") }

func FormatDateTime(t time.Time) string { return t.Format(time.RFC3339) }

func FormatTime(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("15:04:05.000")
	}
	return t.Format("15:04:05")
}
