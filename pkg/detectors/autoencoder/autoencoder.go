// Package autoencoder runs a frozen dense autoencoder and scores samples by
// their reconstruction error.
package autoencoder

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/fraudshield/pkg/detectors"
)

var _ detectors.Reconstructor = (*Model)(nil)

// Model is a stack of dense layers evaluated in inference mode only. It is
// immutable after construction and safe for concurrent use.
type Model struct {
	inputDim int
	layers   []layer
}

type layer struct {
	weights *mat.Dense // in x out
	bias    []float64
	fn      func(float64) float64
}

// Layer describes one dense layer. Kernel is indexed [input][output].
type Layer struct {
	Activation string      `json:"activation"`
	Kernel     [][]float64 `json:"kernel"`
	Bias       []float64   `json:"bias"`
}

type modelFile struct {
	InputDim int     `json:"input_dim"`
	Layers   []Layer `json:"layers"`
}

// New builds a model from its layers. The last layer must reproduce the
// input width.
func New(inputDim int, layers ...Layer) (*Model, error) {
	if inputDim <= 0 {
		return nil, errors.Errorf("invalid input dimension %d", inputDim)
	}
	if len(layers) == 0 {
		return nil, errors.New("autoencoder has no layers")
	}

	m := &Model{inputDim: inputDim, layers: make([]layer, len(layers))}
	width := inputDim
	for i, l := range layers {
		built, err := buildLayer(width, l)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		m.layers[i] = built
		_, width = built.weights.Dims()
	}
	if width != inputDim {
		return nil, errors.Errorf("output width %d does not match input width %d", width, inputDim)
	}
	return m, nil
}

// Load decodes a JSON autoencoder artifact.
func Load(r io.Reader) (*Model, error) {
	var f modelFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "error decoding autoencoder")
	}
	return New(f.InputDim, f.Layers...)
}

func buildLayer(in int, l Layer) (layer, error) {
	fn, ok := activations[l.Activation]
	if !ok {
		return layer{}, errors.Errorf("unsupported activation %q", l.Activation)
	}
	if len(l.Kernel) != in {
		return layer{}, errors.Errorf("kernel has %d rows, want %d", len(l.Kernel), in)
	}
	out := len(l.Bias)
	if out == 0 {
		return layer{}, errors.New("empty bias")
	}

	data := make([]float64, 0, in*out)
	for r, row := range l.Kernel {
		if len(row) != out {
			return layer{}, errors.Errorf("kernel row %d has %d columns, want %d", r, len(row), out)
		}
		data = append(data, row...)
	}
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return layer{}, errors.New("kernel has non-finite weights")
		}
	}

	return layer{
		weights: mat.NewDense(in, out, data),
		bias:    append([]float64(nil), l.Bias...),
		fn:      fn,
	}, nil
}

// InputDim returns the sample width.
func (m *Model) InputDim() int {
	return m.inputDim
}

// Reconstruct runs the network forward over all samples.
func (m *Model) Reconstruct(features [][]float64) ([][]float64, error) {
	if len(features) == 0 {
		return [][]float64{}, nil
	}

	data := make([]float64, 0, len(features)*m.inputDim)
	for i, sample := range features {
		if len(sample) != m.inputDim {
			return nil, errors.Errorf("sample %d: expected %d features, got %d", i, m.inputDim, len(sample))
		}
		data = append(data, sample...)
	}

	var cur mat.Matrix = mat.NewDense(len(features), m.inputDim, data)
	for _, l := range m.layers {
		var next mat.Dense
		next.Mul(cur, l.weights)
		next.Apply(func(_, j int, v float64) float64 {
			return l.fn(v + l.bias[j])
		}, &next)
		cur = &next
	}

	out := make([][]float64, len(features))
	dense := cur.(*mat.Dense)
	for i := range out {
		out[i] = mat.Row(nil, i, dense)
	}
	return out, nil
}

// Score returns the mean squared reconstruction error of each sample.
func (m *Model) Score(features [][]float64) ([]float64, error) {
	recon, err := m.Reconstruct(features)
	if err != nil {
		return nil, err
	}
	return MeanSquaredError(features, recon)
}

// MeanSquaredError returns, per row, the mean over columns of the squared
// difference between a and b.
func MeanSquaredError(a, b [][]float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, errors.Errorf("row count mismatch: %d vs %d", len(a), len(b))
	}

	out := make([]float64, len(a))
	for i := range a {
		if len(a[i]) != len(b[i]) || len(a[i]) == 0 {
			return nil, errors.Errorf("row %d: width mismatch", i)
		}
		diff := make([]float64, len(a[i]))
		floats.SubTo(diff, a[i], b[i])
		out[i] = floats.Dot(diff, diff) / float64(len(diff))
	}
	return out, nil
}
