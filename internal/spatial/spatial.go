// Package spatial summarizes point layers by the zone polygon that contains
// each point.
package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Zone is a zone polygon with its identifier.
type Zone struct {
	ID       string
	Geometry orb.MultiPolygon
	bound    orb.Bound
}

// NewZone builds a Zone from a Polygon or MultiPolygon geometry. Other
// geometry types produce a zone that contains nothing.
func NewZone(id string, g orb.Geometry) Zone {
	var mp orb.MultiPolygon
	switch g := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	}
	z := Zone{ID: id, Geometry: mp}
	if len(mp) > 0 {
		z.bound = mp.Bound()
	}
	return z
}

// Contains reports whether p lies in the zone. Boundary points count as in.
func (z Zone) Contains(p orb.Point) bool {
	if len(z.Geometry) == 0 || !z.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(z.Geometry, p)
}

// Index assigns points to zones.
type Index struct {
	zones []Zone
}

// NewIndex creates an Index over zones. Zone order decides ties.
func NewIndex(zones []Zone) *Index {
	return &Index{zones: zones}
}

// Locate returns the position of the first zone containing p. A point on a
// border shared by several zones goes to the earliest one.
func (ix *Index) Locate(p orb.Point) (int, bool) {
	for i, z := range ix.zones {
		if z.Contains(p) {
			return i, true
		}
	}
	return -1, false
}

// Zones returns the indexed zones.
func (ix *Index) Zones() []Zone { return ix.zones }

// IDs returns the zone identifiers in order.
func (ix *Index) IDs() []string {
	ids := make([]string, len(ix.zones))
	for i, z := range ix.zones {
		ids[i] = z.ID
	}
	return ids
}
