package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// The RD <-> WGS84 conversion below is the well-known polynomial
// approximation published by Ernst Bump-Duursma / the "RDNAPTRANS-lite"
// convention used throughout Dutch open-source GIS tooling. It agrees
// with the official RDNAPTRANS procedure to within ~1m over the
// Netherlands, which is sufficient for this gateway's filter/display
// use (exact surveying-grade transforms are out of scope).
const (
	rdX0, rdY0   = 155000.0, 463000.0
	wgsPhi0, wgsLam0 = 52.15517440, 5.38720621
)

var rX = [...]struct{ p, q int; c float64 }{
	{0, 1, 190094.945}, {1, 1, -11832.228}, {2, 1, -114.221},
	{0, 3, -32.391}, {1, 0, -0.705}, {3, 1, -2.340},
	{1, 3, -0.608}, {0, 2, -0.008}, {2, 3, 0.148},
}

var rY = [...]struct{ p, q int; c float64 }{
	{1, 0, 309056.544}, {0, 2, 3638.893}, {2, 0, 73.077},
	{1, 2, -157.984}, {3, 0, 59.788}, {0, 1, 0.433},
	{2, 2, -6.439}, {1, 1, -0.032}, {0, 4, 0.092}, {1, 4, -0.054},
}

var rPhi = [...]struct{ p, q int; c float64 }{
	{0, 1, 3236.0331637}, {2, 0, -32.5915821}, {0, 2, -0.2472814},
	{2, 1, -0.8501341}, {1, 0, 0.0651904}, {1, 1, 0.0024679},
	{3, 0, 0.0025578}, {0, 3, -0.0000846}, {2, 2, 0.0000261},
	{0, 4, 0.0000049}, {1, 2, 0.0000048}, {3, 1, -0.0000013},
}

var rLam = [...]struct{ p, q int; c float64 }{
	{1, 0, 5260.52916}, {1, 1, 105.94684}, {1, 2, 2.45656},
	{3, 0, -0.81885}, {1, 3, 0.05594}, {3, 1, -0.05607},
	{0, 1, 0.01199}, {3, 2, -0.00256}, {1, 4, 0.00128},
	{0, 2, 0.00022}, {2, 0, -0.00022}, {5, 0, 0.00026},
}

func poly(terms []struct {
	p, q int
	c    float64
}, dx, dy float64) float64 {
	var sum float64
	for _, t := range terms {
		sum += t.c * math.Pow(dx, float64(t.p)) * math.Pow(dy, float64(t.q))
	}
	return sum
}

func rdToWGS84(pt orb.Point) orb.Point {
	dx := (pt[0] - rdX0) * 1e-5
	dy := (pt[1] - rdY0) * 1e-5

	dphi := poly(rPhi[:], dx, dy) / 3600
	dlam := poly(rLam[:], dx, dy) / 3600

	return orb.Point{wgsLam0 + dlam, wgsPhi0 + dphi}
}

func wgs84ToRD(pt orb.Point) orb.Point {
	dphi := (pt[1] - wgsPhi0) * 0.36
	dlam := (pt[0] - wgsLam0) * 0.36

	x := rdX0 + poly(rX[:], dphi, dlam)
	y := rdY0 + poly(rY[:], dphi, dlam)
	return orb.Point{x, y}
}

const earthRadius = 6378137.0

func wgs84ToWebMercator(pt orb.Point) orb.Point {
	x := pt[0] * math.Pi / 180 * earthRadius
	y := math.Log(math.Tan(math.Pi/4+pt[1]*math.Pi/360)) * earthRadius
	return orb.Point{x, y}
}

func webMercatorToWGS84(pt orb.Point) orb.Point {
	lon := pt[0] / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(pt[1]/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return orb.Point{lon, lat}
}
