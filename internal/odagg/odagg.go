// Package odagg aggregates OD survey records per zone and per zone pair.
package odagg

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/table"
)

// Column naming for ZoneTotals.
const (
	KeyColumn         = "Ubicación"
	OriginSuffix      = "_origen"
	DestinationSuffix = "_destino"
)

// ZoneTotals sums every count column by origin zone and by destination
// zone and outer-joins the two: destination sums (suffix _destino) first,
// then origin sums (suffix _origen). A zone seen on one side only has NaN
// for the other side. When dropTrailing is set the last record, the
// survey's grand-total row, is discarded. Rows are sorted by zone id.
func ZoneTotals(records []model.ODRecord, dropTrailing bool) (*table.Table[string], error) {
	if dropTrailing && len(records) > 0 {
		records = records[:len(records)-1]
	}
	cols := model.ODColumns(records)

	byOrigin := group(records, cols, func(p model.Pair) string { return p.Origin })
	byDest := group(records, cols, func(p model.Pair) string { return p.Destination })

	dest, err := byDest.Rename(func(c string) string { return c + DestinationSuffix })
	if err != nil {
		return nil, err
	}
	orig, err := byOrigin.Rename(func(c string) string { return c + OriginSuffix })
	if err != nil {
		return nil, err
	}
	out, err := table.OuterJoin(dest, orig, "", "")
	if err != nil {
		return nil, err
	}
	out.SortKeys(func(a, b string) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})

	zap.L().Debug("odagg: zone totals",
		zap.Int("records", len(records)),
		zap.Int("zones", out.Len()),
		zap.Int("origins", byOrigin.Len()),
		zap.Int("destinations", byDest.Len()),
	)
	return out, nil
}

// group sums records by key. Records with an empty key are skipped and
// NaN counts add nothing.
func group(records []model.ODRecord, cols []string, key func(model.Pair) string) *table.Table[string] {
	sums := make(map[string][]float64)
	var order []string
	for _, r := range records {
		k := key(r.Pair)
		if k == "" {
			continue
		}
		row, ok := sums[k]
		if !ok {
			row = make([]float64, len(cols))
			sums[k] = row
			order = append(order, k)
		}
		for i, c := range cols {
			if v := r.Value(c); !math.IsNaN(v) {
				row[i] += v
			}
		}
	}

	t := table.New[string]("zone_totals", cols)
	for _, k := range order {
		_ = t.Append(k, sums[k])
	}
	return t
}

// Pairwise indexes complete records by (origin, destination). Records with
// any missing key or count are dropped. Every Auto* and Camioneta* column
// is summed into Vehiculo, which takes the place of the first such column.
// Repeated pairs are summed.
func Pairwise(records []model.ODRecord) (*table.Table[model.Pair], error) {
	complete := make([]model.ODRecord, 0, len(records))
	for _, r := range records {
		if !r.HasMissing() {
			complete = append(complete, r)
		}
	}
	if dropped := len(records) - len(complete); dropped > 0 {
		zap.L().Info("odagg: dropped incomplete od records",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(complete)),
		)
	}

	raw := model.ODColumns(complete)
	cols := make([]string, 0, len(raw))
	vehicleAt := -1
	for _, c := range raw {
		if model.IsVehicleColumn(c) {
			if vehicleAt < 0 {
				vehicleAt = len(cols)
				cols = append(cols, string(model.ModeVehicle))
			}
			continue
		}
		cols = append(cols, c)
	}
	if vehicleAt < 0 {
		vehicleAt = slices.Index(cols, string(model.ModeVehicle))
	}
	if vehicleAt < 0 {
		total := slices.Index(cols, string(model.ModeTotal))
		cols = slices.Insert(cols, total, string(model.ModeVehicle))
		vehicleAt = total
	}

	out := table.New[model.Pair]("od_pairs", cols)
	var repeated int
	for _, r := range complete {
		row := make([]float64, len(cols))
		for _, c := range r.Counts {
			if model.IsVehicleColumn(c.Column) {
				row[vehicleAt] += c.Count
				continue
			}
			if i := slices.Index(cols, c.Column); i >= 0 {
				row[i] += c.Count
			}
		}
		row[len(row)-1] = r.Total

		if prev, ok := out.Row(r.Pair); ok {
			repeated++
			for i := range row {
				if err := out.Set(r.Pair, cols[i], prev[i]+row[i]); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := out.Append(r.Pair, row); err != nil {
			return nil, err
		}
	}
	if repeated > 0 {
		zap.L().Warn("odagg: repeated od pairs summed", zap.Int("repeated", repeated))
	}
	return out, nil
}
