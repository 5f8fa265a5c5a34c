// Package modesplit predicts per-mode trip counts for every surveyed zone
// pair.
package modesplit

import (
	"context"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/predict"
	"github.com/sells-group/odflow/internal/table"
)

// Suffixes for zone attributes joined onto a pair.
const (
	OriginSuffix      = "__ORIGEN"
	DestinationSuffix = "__DESTINO"
)

// BuildPairTable joins zone attributes onto each OD pair twice, once for
// the origin (suffix __ORIGEN) and once for the destination (suffix
// __DESTINO), then joins travel times. Missing values are 0.
func BuildPairTable(od *table.Table[model.Pair], zones *table.Table[string], travel *table.Table[model.Pair]) (*table.Table[model.Pair], error) {
	withOrigin, err := table.LeftJoinOn(od, zones, func(p model.Pair) string { return p.Origin }, OriginSuffix)
	if err != nil {
		return nil, eris.Wrap(err, "modesplit: join origin attributes")
	}
	withBoth, err := table.LeftJoinOn(withOrigin, zones, func(p model.Pair) string { return p.Destination }, DestinationSuffix)
	if err != nil {
		return nil, eris.Wrap(err, "modesplit: join destination attributes")
	}
	pairs, err := table.LeftJoin(withBoth, travel)
	if err != nil {
		return nil, eris.Wrap(err, "modesplit: join travel times")
	}

	var unmatched int
	for _, k := range pairs.Keys() {
		if !zones.HasKey(k.Origin) || !zones.HasKey(k.Destination) || !travel.HasKey(k) {
			unmatched++
		}
	}
	if unmatched > 0 {
		zap.L().Warn("modesplit: pairs with missing join keys filled with zeros",
			zap.Int("pairs", pairs.Len()),
			zap.Int("unmatched", unmatched),
		)
	}

	pairs.FillNaN(0)
	return pairs, nil
}

// Schema lists the outputs a mode-split model must produce, in row order.
type Schema struct {
	Outputs []string
}

// DefaultSchema expects the eight mode categories.
func DefaultSchema() Schema {
	return Schema{Outputs: model.ModeColumns()}
}

// Predict runs the mode-split model over every pair. The model's declared
// predictors must all be present in pairs, or a *model.SchemaError is
// returned before anything is predicted. Negative outputs become 0 and
// values are truncated. Rows are sorted by (origin, destination).
func Predict(ctx context.Context, pairs *table.Table[model.Pair], m predict.Predictor, schema Schema) ([]model.ModeSplitRow, error) {
	if len(schema.Outputs) == 0 {
		schema = DefaultSchema()
	}
	if err := checkOutputs(schema); err != nil {
		return nil, err
	}

	ms := m.Schema()
	if missing := missingTargets(ms.Targets, schema.Outputs); len(missing) > 0 {
		return nil, &model.SchemaError{Table: "mode split model targets", Missing: missing}
	}
	if len(ms.Targets) != len(schema.Outputs) {
		return nil, eris.Errorf("modesplit: model declares %d targets, want %d", len(ms.Targets), len(schema.Outputs))
	}

	predictors := ms.Predictors()
	if err := pairs.Require(predictors...); err != nil {
		return nil, eris.Wrap(err, "modesplit: predictors")
	}

	x, err := pairs.Select(predictors...)
	if err != nil {
		return nil, err
	}
	x.SortKeys(model.ComparePairs)
	if x.Len() == 0 {
		return nil, nil
	}
	dense, err := x.Dense(predictors)
	if err != nil {
		return nil, eris.Wrap(err, "modesplit: predictor matrix")
	}

	y, err := m.Predict(ctx, dense)
	if err != nil {
		return nil, eris.Wrap(err, "modesplit: predict")
	}
	rows, cols := y.Dims()
	if rows != x.Len() || cols != len(ms.Targets) {
		return nil, eris.Wrapf(model.ErrShape, "modesplit: model returned %dx%d for %d pairs and %d targets",
			rows, cols, x.Len(), len(ms.Targets))
	}

	// position of each mode in the model's output
	at := make([]int, model.NumModes)
	for i, mode := range model.Modes {
		at[i] = slices.Index(ms.Targets, string(mode))
	}

	out := make([]model.ModeSplitRow, x.Len())
	var clamped int
	for r, pair := range x.Keys() {
		out[r].Pair = pair
		for i := range model.Modes {
			v := y.At(r, at[i])
			if v < 0 || math.IsNaN(v) {
				clamped++
				v = 0
			}
			if v >= maxCount {
				return nil, eris.Errorf("modesplit: %s prediction for %s out of range: %g", model.Modes[i], pair, v)
			}
			out[r].Counts[i] = int64(v)
		}
	}
	if clamped > 0 {
		zap.L().Debug("modesplit: negative predictions clamped", zap.Int("values", clamped))
	}
	return out, nil
}

// maxCount is 2^63, the first float64 that does not fit an int64.
const maxCount = float64(1 << 63)

func checkOutputs(s Schema) error {
	if !slices.Equal(s.Outputs, model.ModeColumns()) {
		return eris.Errorf("modesplit: outputs must be exactly %v, got %v", model.ModeColumns(), s.Outputs)
	}
	return nil
}

func missingTargets(targets, outputs []string) []string {
	var missing []string
	for _, o := range outputs {
		if !slices.Contains(targets, o) {
			missing = append(missing, o)
		}
	}
	return missing
}
