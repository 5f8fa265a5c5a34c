// Package tripgen predicts the trips each zone generates and attracts.
package tripgen

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/predict"
	"github.com/sells-group/odflow/internal/table"
)

// Zone table columns.
const (
	ColumnOrigin      = "Viajes Origen"
	ColumnDestination = "Viajes Destino"
)

// Options tunes post-processing of model outputs.
type Options struct {
	// ClampNegative raises negative estimates to 0.
	ClampNegative bool
}

// Predict runs the origin and destination regressors over every feature
// row. Estimates are rounded half to even. It returns one TripRow
// per zone in feature order, and the same values as a zone table with
// ColumnOrigin and ColumnDestination.
func Predict(ctx context.Context, features *table.Table[string], origin, destination predict.Predictor, opts Options) ([]model.TripRow, *table.Table[string], error) {
	originOut, err := run(ctx, features, origin, "origin")
	if err != nil {
		return nil, nil, err
	}
	destOut, err := run(ctx, features, destination, "destination")
	if err != nil {
		return nil, nil, err
	}

	ids := features.Keys()
	rows := make([]model.TripRow, len(ids))
	zones := table.New[string]("trips", []string{ColumnOrigin, ColumnDestination})
	var negative int
	for i, id := range ids {
		o, d := originOut[i], destOut[i]
		if o < 0 || d < 0 {
			negative++
		}
		rows[i] = model.TripRow{
			ZoneID:           id,
			TripsOriginating: toCount(o, opts.ClampNegative),
			TripsTerminating: toCount(d, opts.ClampNegative),
		}
		if err := zones.Append(id, []float64{float64(rows[i].TripsOriginating), float64(rows[i].TripsTerminating)}); err != nil {
			return nil, nil, err
		}
	}

	if negative > 0 {
		zap.L().Warn("tripgen: negative trip estimates",
			zap.Int("zones", negative),
			zap.Bool("clamped", opts.ClampNegative),
		)
	}
	return rows, zones, nil
}

func run(ctx context.Context, features *table.Table[string], p predict.Predictor, role string) ([]float64, error) {
	x, err := features.Dense(p.Schema().Predictors())
	if err != nil {
		return nil, eris.Wrapf(err, "tripgen: %s features", role)
	}
	y, err := p.Predict(ctx, x)
	if err != nil {
		return nil, eris.Wrapf(err, "tripgen: %s model", role)
	}
	if r, _ := y.Dims(); r != features.Len() {
		return nil, eris.Wrapf(model.ErrShape, "tripgen: %s model returned %d rows for %d zones", role, r, features.Len())
	}
	return mat.Col(nil, 0, y), nil
}

func toCount(v float64, clamp bool) int64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.RoundToEven(v)
	if clamp && v < 0 {
		return 0
	}
	return int64(v)
}
