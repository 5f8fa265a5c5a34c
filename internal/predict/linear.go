package predict

import (
	"context"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Linear is an in-process linear regressor: y = x·Wᵀ + b, one weight row
// per target.
type Linear struct {
	name      string
	schema    Schema
	weights   *mat.Dense
	intercept []float64
}

// NewLinear builds a linear model. coefficients has one row per target and
// one column per predictor; a nil intercept means zero.
func NewLinear(name string, schema Schema, coefficients [][]float64, intercept []float64) (*Linear, error) {
	if err := validate.Struct(schema); err != nil {
		return nil, eris.Wrapf(err, "predict: %s: invalid schema", name)
	}
	predictors := schema.Predictors()
	if len(coefficients) != len(schema.Targets) {
		return nil, eris.Errorf("predict: %s: %d coefficient rows for %d targets", name, len(coefficients), len(schema.Targets))
	}
	if intercept == nil {
		intercept = make([]float64, len(schema.Targets))
	}
	if len(intercept) != len(schema.Targets) {
		return nil, eris.Errorf("predict: %s: %d intercepts for %d targets", name, len(intercept), len(schema.Targets))
	}

	w := mat.NewDense(len(schema.Targets), len(predictors), nil)
	for i, row := range coefficients {
		if len(row) != len(predictors) {
			return nil, eris.Errorf("predict: %s: target %s has %d coefficients for %d predictors",
				name, schema.Targets[i], len(row), len(predictors))
		}
		w.SetRow(i, row)
	}
	return &Linear{name: name, schema: schema, weights: w, intercept: intercept}, nil
}

// Schema returns the model's declared columns.
func (l *Linear) Schema() Schema { return l.schema }

// Predict evaluates the model on every row of x.
func (l *Linear) Predict(_ context.Context, x *mat.Dense) (*mat.Dense, error) {
	if err := checkInput(l.name, l.schema, x); err != nil {
		return nil, err
	}
	rows, _ := x.Dims()
	var y mat.Dense
	y.Mul(x, l.weights.T())
	for i := 0; i < rows; i++ {
		for j, b := range l.intercept {
			y.Set(i, j, y.At(i, j)+b)
		}
	}
	return &y, nil
}
