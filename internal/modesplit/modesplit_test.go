package modesplit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/predict"
	"github.com/sells-group/odflow/internal/table"
)

func pair(o, d string) model.Pair { return model.Pair{Origin: o, Destination: d} }

func odTable(t *testing.T) *table.Table[model.Pair] {
	t.Helper()
	od := table.New[model.Pair]("od_pairs", model.ModeColumns())
	require.NoError(t, od.Append(pair("B", "A"), []float64{1, 0, 0, 0, 0, 1, 0, 2}))
	require.NoError(t, od.Append(pair("A", "B"), []float64{4, 0, 0, 0, 0, 6, 0, 10}))
	require.NoError(t, od.Append(pair("A", "Z"), []float64{1, 0, 0, 0, 0, 0, 0, 1}))
	return od
}

func zoneTable(t *testing.T) *table.Table[string] {
	t.Helper()
	z := table.New[string]("zones", []string{"sum_POBTOT", "Viajes Origen"})
	require.NoError(t, z.Append("A", []float64{100, 15}))
	require.NoError(t, z.Append("B", []float64{50, 2}))
	return z
}

func travelTable(t *testing.T) *table.Table[model.Pair] {
	t.Helper()
	tt := table.New[model.Pair]("travel_time", []string{"travel_time_Driving", "travel_time_Walking"})
	require.NoError(t, tt.Append(pair("A", "B"), []float64{300, 1200}))
	require.NoError(t, tt.Append(pair("B", "A"), []float64{310, 1190}))
	return tt
}

func TestBuildPairTable(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	assert.Equal(t, 3, pairs.Len())
	for _, c := range []string{
		"sum_POBTOT__ORIGEN", "Viajes Origen__ORIGEN",
		"sum_POBTOT__DESTINO", "Viajes Origen__DESTINO",
		"travel_time_Driving", "travel_time_Walking", "Caminando",
	} {
		assert.True(t, pairs.HasColumn(c), c)
	}

	get := func(p model.Pair, c string) float64 {
		v, ok := pairs.Get(p, c)
		require.True(t, ok)
		return v
	}
	assert.Equal(t, 100.0, get(pair("A", "B"), "sum_POBTOT__ORIGEN"))
	assert.Equal(t, 50.0, get(pair("A", "B"), "sum_POBTOT__DESTINO"))
	assert.Equal(t, 1200.0, get(pair("A", "B"), "travel_time_Walking"))
	assert.Equal(t, 0.0, get(pair("A", "Z"), "sum_POBTOT__DESTINO"))
	assert.Equal(t, 0.0, get(pair("A", "Z"), "travel_time_Driving"))
}

// echoModel returns, for every target, the first predictor plus an offset
// per target index.
type echoModel struct {
	schema  predict.Schema
	offsets []float64
}

func (e echoModel) Schema() predict.Schema { return e.schema }

func (e echoModel) Predict(_ context.Context, x *mat.Dense) (*mat.Dense, error) {
	r, _ := x.Dims()
	y := mat.NewDense(r, len(e.schema.Targets), nil)
	for i := 0; i < r; i++ {
		for j := range e.schema.Targets {
			y.Set(i, j, x.At(i, 0)+e.offsets[j])
		}
	}
	return y, nil
}

func fluxSchema(features ...string) predict.Schema {
	return predict.Schema{
		Features: append(features, model.ModeColumns()...),
		Targets:  model.ModeColumns(),
		IDs:      []string{"CODIGO_MZ__ORIGEN"},
	}
}

func TestPredict(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	m := echoModel{
		schema:  fluxSchema("travel_time_Driving", "sum_POBTOT__ORIGEN"),
		offsets: []float64{0.9, -400, 0, 0, 0, 0, 0, 1.5},
	}
	rows, err := Predict(context.Background(), pairs, m, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []model.Pair{pair("A", "B"), pair("A", "Z"), pair("B", "A")},
		[]model.Pair{rows[0].Pair, rows[1].Pair, rows[2].Pair})
	assert.Equal(t, int64(300), rows[0].Count(model.ModeWalking))
	assert.Equal(t, int64(0), rows[0].Count(model.ModeTransit), "negative clamped")
	assert.Equal(t, int64(301), rows[0].Count(model.ModeTotal))
	assert.Equal(t, int64(0), rows[1].Count(model.ModeWalking))
	assert.Equal(t, int64(310), rows[2].Count(model.ModeTaxi))

	again, err := Predict(context.Background(), pairs, m, Schema{})
	require.NoError(t, err)
	assert.Equal(t, rows, again)
}

func TestPredictReordersTargets(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	targets := model.ModeColumns()
	targets[0], targets[7] = targets[7], targets[0]
	m := echoModel{
		schema:  predict.Schema{Features: []string{"travel_time_Driving"}, Targets: targets},
		offsets: []float64{1000, 0, 0, 0, 0, 0, 0, 0},
	}
	rows, err := Predict(context.Background(), pairs, m, DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, int64(1300), rows[0].Count(model.ModeTotal))
	assert.Equal(t, int64(300), rows[0].Count(model.ModeWalking))
}

func TestPredictMissingPredictorIsFatal(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	called := false
	m := spyModel{schema: fluxSchema("travel_time_Driving", "Unidades_Economicas__ORIGEN"), called: &called}
	_, err = Predict(context.Background(), pairs, m, DefaultSchema())
	require.Error(t, err)

	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Unidades_Economicas__ORIGEN"}, se.Missing)
	assert.False(t, called)
}

func TestPredictRejectsWrongTargets(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	m := echoModel{schema: predict.Schema{Features: []string{"travel_time_Driving"}, Targets: []string{"Caminando"}}}
	_, err = Predict(context.Background(), pairs, m, DefaultSchema())
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, "Vehiculo")

	_, err = Predict(context.Background(), pairs, m, Schema{Outputs: []string{"Caminando"}})
	assert.Error(t, err)
}

func TestPredictRejectsOutOfRangeCounts(t *testing.T) {
	pairs, err := BuildPairTable(odTable(t), zoneTable(t), travelTable(t))
	require.NoError(t, err)

	for name, total := range map[string]float64{
		"infinite": math.Inf(1),
		"overflow": 1e19,
	} {
		t.Run(name, func(t *testing.T) {
			m := echoModel{
				schema:  predict.Schema{Features: []string{"travel_time_Driving"}, Targets: model.ModeColumns()},
				offsets: []float64{0, 0, 0, 0, 0, 0, 0, total},
			}
			rows, err := Predict(context.Background(), pairs, m, DefaultSchema())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "Total prediction")
			assert.Nil(t, rows)
		})
	}

	m := echoModel{
		schema:  predict.Schema{Features: []string{"travel_time_Driving"}, Targets: model.ModeColumns()},
		offsets: []float64{math.Inf(-1), 0, 0, 0, 0, 0, 0, 0},
	}
	rows, err := Predict(context.Background(), pairs, m, DefaultSchema())
	require.NoError(t, err)
	assert.Zero(t, rows[0].Count(model.ModeWalking))
}

type spyModel struct {
	schema predict.Schema
	called *bool
}

func (s spyModel) Schema() predict.Schema { return s.schema }

func (s spyModel) Predict(_ context.Context, x *mat.Dense) (*mat.Dense, error) {
	*s.called = true
	r, _ := x.Dims()
	return mat.NewDense(r, model.NumModes, nil), nil
}
