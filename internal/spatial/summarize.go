package spatial

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/table"
)

// Tagged is a point carrying a category key.
type Tagged struct {
	Point orb.Point
	Key   string
}

// Weighted is a point carrying numeric attributes.
type Weighted struct {
	Point  orb.Point
	Values map[string]float64
}

// CountWithin counts points per zone into column. Every zone gets a row.
func CountWithin(ix *Index, points []orb.Point, column string) (*table.Table[string], error) {
	counts := make([]float64, len(ix.zones))
	var outside int
	for _, p := range points {
		if i, ok := ix.Locate(p); ok {
			counts[i]++
		} else {
			outside++
		}
	}
	logOutside(column, outside, len(points))

	out := table.New[string](column, []string{column})
	for i, z := range ix.zones {
		if err := out.Append(z.ID, []float64{counts[i]}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PivotWithin counts points per zone and category. Each category becomes a
// column named prefix+key, sorted by key, followed by totalColumn with the
// count over all categories.
func PivotWithin(ix *Index, points []Tagged, prefix, totalColumn string) (*table.Table[string], error) {
	perZone := make([]map[string]float64, len(ix.zones))
	keys := make(map[string]bool)
	var outside int
	for _, p := range points {
		i, ok := ix.Locate(p.Point)
		if !ok {
			outside++
			continue
		}
		if perZone[i] == nil {
			perZone[i] = make(map[string]float64)
		}
		perZone[i][p.Key]++
		keys[p.Key] = true
	}
	logOutside(totalColumn, outside, len(points))

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.Sort(sorted)

	cols := make([]string, 0, len(sorted)+1)
	for _, k := range sorted {
		cols = append(cols, prefix+k)
	}
	cols = append(cols, totalColumn)

	out := table.New[string](totalColumn, cols)
	for i, z := range ix.zones {
		row := make([]float64, len(cols))
		var total float64
		for j, k := range sorted {
			row[j] = perZone[i][k]
			total += row[j]
		}
		row[len(row)-1] = total
		if err := out.Append(z.ID, row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SumWithin sums the given fields of the points in each zone into columns
// named sum_<FIELD>, plus countColumn with the number of points. NaN values
// are skipped.
func SumWithin(ix *Index, points []Weighted, fields []string, countColumn string) (*table.Table[string], error) {
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, "sum_"+f)
	}
	cols = append(cols, countColumn)

	sums := make([][]float64, len(ix.zones))
	for i := range sums {
		sums[i] = make([]float64, len(cols))
	}

	var outside int
	for _, p := range points {
		i, ok := ix.Locate(p.Point)
		if !ok {
			outside++
			continue
		}
		for j, f := range fields {
			if v, ok := p.Values[f]; ok && !math.IsNaN(v) {
				sums[i][j] += v
			}
		}
		sums[i][len(cols)-1]++
	}
	logOutside(countColumn, outside, len(points))

	out := table.New[string](countColumn, cols)
	for i, z := range ix.zones {
		if err := out.Append(z.ID, sums[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func logOutside(layer string, outside, total int) {
	if outside == 0 {
		return
	}
	zap.L().Debug("spatial: points outside every zone",
		zap.String("layer", layer),
		zap.Int("outside", outside),
		zap.Int("total", total),
	)
}
