package spatial

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// InsidePoint returns a point guaranteed to lie inside g when g has area.
// The centroid is used when it falls inside; otherwise the midpoint of the
// first interior span on the horizontal line through the centroid.
// Points and degenerate shapes return their centroid.
func InsidePoint(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)

	var mp orb.MultiPolygon
	switch g := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return c
	}
	if len(mp) == 0 || planar.MultiPolygonContains(mp, c) {
		return c
	}

	xs := crossings(mp, c[1])
	for i := 0; i+1 < len(xs); i += 2 {
		mid := orb.Point{(xs[i] + xs[i+1]) / 2, c[1]}
		if planar.MultiPolygonContains(mp, mid) {
			return mid
		}
	}

	// The scan line only grazes vertices; fall back to a vertex.
	if len(mp[0]) > 0 && len(mp[0][0]) > 0 {
		return mp[0][0][0]
	}
	return c
}

// crossings returns the sorted x coordinates where ring edges cross y.
func crossings(mp orb.MultiPolygon, y float64) []float64 {
	var xs []float64
	for _, poly := range mp {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				a, b := ring[i], ring[i+1]
				if (a[1] > y) == (b[1] > y) {
					continue
				}
				t := (y - a[1]) / (b[1] - a[1])
				xs = append(xs, a[0]+t*(b[0]-a[0]))
			}
		}
	}
	slices.Sort(xs)
	return xs
}
