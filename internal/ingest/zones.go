package ingest

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/spatial"
	"github.com/sells-group/odflow/internal/table"
	"github.com/sells-group/odflow/internal/zoning"
)

// LoadZones reads the zoning layer and keys each polygon by idField.
func LoadZones(path, idField string) ([]spatial.Zone, error) {
	features, err := zoning.ReadFeatures(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read zones")
	}
	for i := range features {
		if id := features[i].String(idField); id != "" {
			features[i].Set(idField, NormalizeID(id))
		}
	}
	zones, err := zoning.Zones(features, idField)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: zones")
	}
	zap.L().Info("ingest: zones loaded", zap.String("path", path), zap.Int("zones", len(zones)))
	return zones, nil
}

// Coordinates returns the representative point of every zone, in zone
// order.
func Coordinates(zones []spatial.Zone) []model.Coordinate {
	coords := make([]model.Coordinate, len(zones))
	for i, z := range zones {
		p := spatial.InsidePoint(z.Geometry)
		coords[i] = model.Coordinate{X: p[0], Y: p[1]}
	}
	return coords
}

// LoadCensusBlocks reads census blocks and reduces each to an interior
// point carrying the requested numeric fields.
func LoadCensusBlocks(path string, fields []string) ([]spatial.Weighted, error) {
	features, err := zoning.ReadFeatures(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read census blocks")
	}
	if len(features) > 0 {
		var missing []string
		for _, f := range fields {
			if !features[0].Has(f) {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return nil, &model.SchemaError{Table: "census_blocks", Missing: missing}
		}
	}

	blocks := make([]spatial.Weighted, 0, len(features))
	for _, f := range features {
		values := make(map[string]float64, len(fields))
		for _, name := range fields {
			values[name] = f.Float(name)
		}
		blocks = append(blocks, spatial.Weighted{Point: spatial.InsidePoint(f.Geometry), Values: values})
	}
	return blocks, nil
}

// LoadAttributes reads a precomputed zone attribute table. The id column
// keys the rows; cells that do not parse as numbers are NaN and columns with
// no numeric value at all are dropped.
func LoadAttributes(path, idField string, opts fetcher.TableOptions) (*table.Table[string], error) {
	raw, err := fetcher.ReadTable(path, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read attributes %s", path)
	}
	return ParseAttributes(raw, idField)
}

// ParseAttributes converts a raw table into a zone-keyed numeric table.
func ParseAttributes(raw *fetcher.RawTable, idField string) (*table.Table[string], error) {
	idIdx, ok := raw.Index(idField)
	if !ok {
		return nil, &model.SchemaError{Table: "attributes", Missing: []string{idField}}
	}

	values := make([][]float64, len(raw.Rows))
	for r := range raw.Rows {
		values[r] = make([]float64, len(raw.Header))
	}
	numeric := make([]bool, len(raw.Header))
	for c := range raw.Header {
		if c == idIdx {
			continue
		}
		for r, row := range raw.Rows {
			v := zoning.ParseNumber(row[c])
			values[r][c] = v
			if !math.IsNaN(v) {
				numeric[c] = true
			}
		}
	}

	var cols []string
	var idx []int
	for c, h := range raw.Header {
		if c == idIdx || !numeric[c] {
			continue
		}
		cols = append(cols, h)
		idx = append(idx, c)
	}

	out := table.New[string]("attributes", cols)
	for r, row := range raw.Rows {
		id := NormalizeID(row[idIdx])
		if id == "" {
			continue
		}
		vals := make([]float64, len(idx))
		for j, c := range idx {
			vals[j] = values[r][c]
		}
		if err := out.Append(id, vals); err != nil {
			return nil, eris.Wrap(err, "ingest: attributes")
		}
	}
	return out, nil
}
