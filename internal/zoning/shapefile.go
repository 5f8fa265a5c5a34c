package zoning

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// shapeReader is the subset shared by shp.Reader and shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

func readShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: open shapefile %s", path)
	}
	return readShapes(reader, path)
}

func readShapefileZip(path string) ([]Feature, error) {
	reader, err := shp.OpenZip(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: open zipped shapefile %s", path)
	}
	return readShapes(reader, path)
}

func readShapes(reader shapeReader, path string) ([]Feature, error) {
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToOrb(shape)
		if g == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		features = append(features, newFeature(g, props))
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "zoning: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("zoning: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// shapeToOrb converts a go-shp geometry. Returns nil for unsupported or
// empty shapes.
func shapeToOrb(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.Polygon:
		return ringsToMultiPolygon(splitParts(s.Parts, s.Points))
	case *shp.PolygonZ:
		return ringsToMultiPolygon(splitParts(s.Parts, s.Points))
	default:
		return nil
	}
}

func splitParts(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// ringsToMultiPolygon groups shapefile rings into polygons. Shapefile outer
// rings wind clockwise; counter-clockwise rings are holes of the preceding
// outer ring.
func ringsToMultiPolygon(rings []orb.Ring) orb.Geometry {
	var mp orb.MultiPolygon
	for _, r := range rings {
		if r.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], r)
			continue
		}
		mp = append(mp, orb.Polygon{r})
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	default:
		return mp
	}
}
