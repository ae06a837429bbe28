package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParsePointLiteral accepts either "x,y" or "POINT(x y)".
func ParsePointLiteral(s string) (orb.Point, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "POINT") {
		open := strings.IndexByte(s, '(')
		close := strings.LastIndexByte(s, ')')
		if open < 0 || close < 0 || close < open {
			return orb.Point{}, fmt.Errorf("geo: malformed WKT point %q", s)
		}
		inner := strings.TrimSpace(s[open+1 : close])
		fields := strings.Fields(inner)
		if len(fields) != 2 {
			return orb.Point{}, fmt.Errorf("geo: malformed WKT point %q", s)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return orb.Point{}, err
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return orb.Point{}, err
		}
		return orb.Point{x, y}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("geo: malformed point literal %q", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, err
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{a, b}, nil
}
