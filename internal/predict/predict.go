// Package predict loads the pre-trained regressors used for trip
// generation and mode split. Models are either linear coefficient files
// evaluated in-process or remote HTTP inference endpoints.
package predict

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Model kinds accepted in model files.
const (
	KindLinear = "linear"
	KindRemote = "remote"
)

// Predictor maps a rows-by-features matrix to a rows-by-targets matrix.
// Input columns follow Schema().Predictors().
type Predictor interface {
	Schema() Schema
	Predict(ctx context.Context, x *mat.Dense) (*mat.Dense, error)
}

// Schema declares a model's columns.
type Schema struct {
	Features []string `yaml:"features" json:"features" validate:"required,min=1,dive,required"`
	Targets  []string `yaml:"targets" json:"targets" validate:"required,min=1,dive,required"`
	IDs      []string `yaml:"ids" json:"ids,omitempty"`
}

// Predictors returns the declared features that are neither targets nor
// identifiers, in declaration order.
func (s Schema) Predictors() []string {
	out := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		if slices.Contains(s.Targets, f) || slices.Contains(s.IDs, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the on-disk model description.
type File struct {
	Kind         string      `yaml:"kind" validate:"required,oneof=linear remote"`
	Name         string      `yaml:"name" validate:"required"`
	Schema       Schema      `yaml:"schema"`
	Endpoint     string      `yaml:"endpoint" validate:"required_if=Kind remote,omitempty,url"`
	Intercept    []float64   `yaml:"intercept"`
	Coefficients [][]float64 `yaml:"coefficients" validate:"required_if=Kind linear"`
}

// Load reads a model file and returns its predictor. remoteTimeout bounds
// each remote inference call.
func Load(path string, remoteTimeout time.Duration) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "predict: read %s", path)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "predict: decode %s", path)
	}
	if err := validate.Struct(f); err != nil {
		return nil, eris.Wrapf(err, "predict: invalid model file %s", path)
	}

	switch f.Kind {
	case KindLinear:
		return NewLinear(f.Name, f.Schema, f.Coefficients, f.Intercept)
	default:
		return NewRemote(f.Name, f.Endpoint, f.Schema, WithTimeout(remoteTimeout)), nil
	}
}

func checkInput(name string, s Schema, x *mat.Dense) error {
	if x == nil {
		return eris.Errorf("predict: %s: nil input", name)
	}
	if _, c := x.Dims(); c != len(s.Predictors()) {
		return eris.Errorf("predict: %s: input has %d columns, model expects %d", name, c, len(s.Predictors()))
	}
	return nil
}
