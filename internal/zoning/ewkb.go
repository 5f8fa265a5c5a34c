package zoning

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID of every geometry written to PostGIS.
const SRID = 4326

// EncodeEWKB converts an orb geometry to little-endian EWKB with SRID 4326.
// Polygons are written as MultiPolygons so a table column has one type.
func EncodeEWKB(g orb.Geometry) ([]byte, error) {
	var t geom.T
	switch g := g.(type) {
	case orb.Point:
		t = geom.NewPointFlat(geom.XY, []float64{g[0], g[1]}).SetSRID(SRID)
	case orb.LineString:
		t = geom.NewLineStringFlat(geom.XY, flatten(g)).SetSRID(SRID)
	case orb.Polygon:
		return EncodeEWKB(orb.MultiPolygon{g})
	case orb.MultiPolygon:
		coords := make([][][]geom.Coord, len(g))
		for i, poly := range g {
			coords[i] = make([][]geom.Coord, len(poly))
			for j, ring := range poly {
				coords[i][j] = make([]geom.Coord, len(ring))
				for k, p := range ring {
					coords[i][j][k] = geom.Coord{p[0], p[1]}
				}
			}
		}
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
		if err != nil {
			return nil, eris.Wrap(err, "zoning: build multipolygon")
		}
		t = mp.SetSRID(SRID)
	default:
		return nil, eris.Errorf("zoning: cannot encode %T as EWKB", g)
	}

	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "zoning: encode EWKB")
	}
	return data, nil
}

func flatten(ls orb.LineString) []float64 {
	flat := make([]float64, 0, len(ls)*2)
	for _, p := range ls {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
