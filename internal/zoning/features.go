// Package zoning reads zone polygons and other vector layers from GeoJSON
// and ESRI shapefiles, and encodes geometries for PostGIS.
package zoning

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/spatial"
)

// Feature is one vector record: a geometry plus its attributes.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
	index      map[string]string
}

func newFeature(g orb.Geometry, props map[string]any) Feature {
	if props == nil {
		props = make(map[string]any)
	}
	f := Feature{Geometry: g, Properties: props, index: make(map[string]string, len(props))}
	for k := range props {
		f.index[fetcher.FoldHeader(k)] = k
	}
	return f
}

func (f Feature) lookup(key string) (any, bool) {
	k, ok := f.index[fetcher.FoldHeader(key)]
	if !ok {
		return nil, false
	}
	return f.Properties[k], true
}

// Has reports whether the feature carries the attribute.
func (f Feature) Has(key string) bool {
	_, ok := f.lookup(key)
	return ok
}

// Set replaces an attribute, keeping the existing spelling of its name.
func (f Feature) Set(key string, v any) {
	if k, ok := f.index[fetcher.FoldHeader(key)]; ok {
		f.Properties[k] = v
		return
	}
	f.Properties[key] = v
	f.index[fetcher.FoldHeader(key)] = key
}

// String returns an attribute as text. Attribute names match case- and
// accent-insensitively.
func (f Feature) String(key string) string {
	v, ok := f.lookup(key)
	if !ok || v == nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Float returns a numeric attribute, or NaN when absent or not numeric.
// INEGI suppression markers ("*", "N/D") read as NaN.
func (f Feature) Float(key string) float64 {
	v, ok := f.lookup(key)
	if !ok || v == nil {
		return math.NaN()
	}
	switch v := v.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return ParseNumber(fmt.Sprint(v))
}

// ParseNumber parses a numeric attribute, returning NaN for blanks and
// suppression markers.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "*", "**", "N/D", "ND", "NA":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ReadFeatures reads a vector layer. Supported inputs are .geojson/.json
// feature collections, .shp shapefiles (with sidecar .dbf) and .zip archives
// holding a shapefile.
func ReadFeatures(path string) ([]Feature, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	case ".shp":
		return readShapefile(path)
	case ".zip":
		return readShapefileZip(path)
	default:
		return nil, eris.Errorf("zoning: unsupported vector format %q", filepath.Ext(path))
	}
}

func readGeoJSON(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: decode %s", path)
	}

	features := make([]Feature, 0, len(fc.Features))
	var skipped int
	for _, f := range fc.Features {
		if f.Geometry == nil {
			skipped++
			continue
		}
		features = append(features, newFeature(f.Geometry, f.Properties))
	}
	if skipped > 0 {
		zap.L().Debug("zoning: skipped features without geometry", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return features, nil
}

// Zones converts features into zones keyed by idField. Zone ids must be
// present and unique; non-areal features are rejected.
func Zones(features []Feature, idField string) ([]spatial.Zone, error) {
	zones := make([]spatial.Zone, 0, len(features))
	seen := make(map[string]bool, len(features))
	for i, f := range features {
		id := f.String(idField)
		if id == "" {
			return nil, eris.Errorf("zoning: feature %d has no %s", i, idField)
		}
		if seen[id] {
			return nil, eris.Errorf("zoning: duplicate zone id %q", id)
		}
		seen[id] = true

		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, eris.Errorf("zoning: zone %q has %s geometry, want polygon", id, f.Geometry.GeoJSONType())
		}
		zones = append(zones, spatial.NewZone(id, f.Geometry))
	}
	return zones, nil
}
