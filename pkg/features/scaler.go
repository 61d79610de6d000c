package features

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Scaler applies a fitted single-feature transform to a column.
type Scaler interface {
	Transform(column []float64) []float64
}

// ScalerKind names the fitted transform family.
type ScalerKind string

const (
	// StandardScaler computes (x - mean) / scale.
	StandardScaler ScalerKind = "standard"
	// MinMaxScaler computes x*scale + min.
	MinMaxScaler ScalerKind = "minmax"
	// RobustScaler computes (x - center) / scale.
	RobustScaler ScalerKind = "robust"
)

// LinearScaler is a fitted single-feature linear transform. The fields mirror
// the fitted attributes of the scikit-learn scaler it was exported from.
type LinearScaler struct {
	Kind   ScalerKind `json:"kind"`
	Mean   []float64  `json:"mean,omitempty"`
	Center []float64  `json:"center,omitempty"`
	Min    []float64  `json:"min,omitempty"`
	Scale  []float64  `json:"scale"`

	shift float64
	scale float64
}

// NewLinearScaler builds a scaler from its kind and fitted parameters. For
// standard and robust scalers shift is the mean/center; for min-max it is the
// additive min term.
func NewLinearScaler(kind ScalerKind, shift, scale float64) (*LinearScaler, error) {
	s := &LinearScaler{Kind: kind, Scale: []float64{scale}}
	switch kind {
	case StandardScaler:
		s.Mean = []float64{shift}
	case RobustScaler:
		s.Center = []float64{shift}
	case MinMaxScaler:
		s.Min = []float64{shift}
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScaler decodes a JSON scaler artifact.
func LoadScaler(r io.Reader) (*LinearScaler, error) {
	var s LinearScaler
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "error decoding scaler")
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *LinearScaler) init() error {
	scale, err := single("scale", s.Scale)
	if err != nil {
		return err
	}
	s.scale = scale

	switch s.Kind {
	case StandardScaler, RobustScaler:
		params := s.Mean
		name := "mean"
		if s.Kind == RobustScaler {
			params, name = s.Center, "center"
		}
		shift, err := single(name, params)
		if err != nil {
			return err
		}
		if scale == 0 {
			return errors.Errorf("%s scaler has zero scale", s.Kind)
		}
		s.shift = shift
	case MinMaxScaler:
		shift, err := single("min", s.Min)
		if err != nil {
			return err
		}
		s.shift = shift
	default:
		return errors.Errorf("unsupported scaler kind %q", s.Kind)
	}
	return nil
}

func single(name string, v []float64) (float64, error) {
	if len(v) != 1 {
		return 0, errors.Errorf("scaler %s: expected 1 fitted value, got %d", name, len(v))
	}
	if math.IsNaN(v[0]) || math.IsInf(v[0], 0) {
		return 0, errors.Errorf("scaler %s: non-finite value", name)
	}
	return v[0], nil
}

// Transform returns a new slice with the fitted transform applied.
func (s *LinearScaler) Transform(column []float64) []float64 {
	out := make([]float64, len(column))
	for i, x := range column {
		if s.Kind == MinMaxScaler {
			out[i] = x*s.scale + s.shift
			continue
		}
		out[i] = (x - s.shift) / s.scale
	}
	return out
}
