// Package features builds the per-zone feature table consumed by the trip
// generation models.
package features

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/table"
)

// RatioColumn is the derived share of occupied dwellings with a car.
const RatioColumn = "vph_automovil"

// Schema names the raw columns the feature table is built from.
type Schema struct {
	// Columns are forwarded unchanged.
	Columns []string `yaml:"columns" validate:"required,min=1,dive,required"`
	// Numerator and Denominator feed RatioColumn and are not forwarded.
	Numerator   string `yaml:"numerator" validate:"required"`
	Denominator string `yaml:"denominator" validate:"required"`
}

// DefaultSchema returns the reference deployment's schema.
func DefaultSchema() Schema {
	return Schema{
		Columns: []string{
			"sum_POBTOT",
			"act_722515",
			"act_722514",
			"act_812110",
			"Unidades_Economicas",
			"Paradas_Camion",
		},
		Numerator:   "sum_VPH_AUTOM",
		Denominator: "sum_TVIVPARHAB",
	}
}

// OutputColumns returns the feature table's columns in order.
func (s Schema) OutputColumns() []string {
	return append(append([]string{}, s.Columns...), RatioColumn)
}

// Build returns one row per zone, in zone order, with the forwarded columns
// and RatioColumn. Zones absent from raw get all-zero features and every
// missing value becomes 0. A schema column missing from raw is a
// *model.SchemaError.
func Build(zones []string, raw *table.Table[string], schema Schema) (*table.Table[string], error) {
	required := append(append([]string{}, schema.Columns...), schema.Numerator, schema.Denominator)
	if err := raw.Require(required...); err != nil {
		return nil, err
	}

	out := table.New[string]("features", schema.OutputColumns())
	var absent int
	for _, id := range zones {
		row := make([]float64, len(schema.Columns)+1)
		if !raw.HasKey(id) {
			absent++
			if err := out.Append(id, row); err != nil {
				return nil, err
			}
			continue
		}

		for i, c := range schema.Columns {
			row[i] = value(raw, id, c)
		}
		row[len(row)-1] = ratio(value(raw, id, schema.Numerator), value(raw, id, schema.Denominator))
		if err := out.Append(id, row); err != nil {
			return nil, err
		}
	}

	if absent > 0 {
		zap.L().Warn("features: zones without raw attributes filled with zeros",
			zap.Int("zones", len(zones)),
			zap.Int("absent", absent),
		)
	}
	return out, nil
}

func value(t *table.Table[string], id, column string) float64 {
	v, ok := t.Get(id, column)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
