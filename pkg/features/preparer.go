package features

import (
	"github.com/pkg/errors"
)

// Preparer turns transaction rows into feature vectors.
type Preparer struct {
	scaler Scaler
}

// NewPreparer creates a Preparer around a fitted scaler.
func NewPreparer(scaler Scaler) *Preparer {
	return &Preparer{scaler: scaler}
}

// Prepare returns one feature vector per row in the order given by
// FeatureNames. Time and Amount are scaled independently with the same
// scaler. The table is not modified.
func (p *Preparer) Prepare(t Table) ([][]float64, error) {
	if p.scaler == nil {
		return nil, errors.New("preparer has no scaler")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	timeCol, err := t.Float(TimeColumn)
	if err != nil {
		return nil, err
	}
	amountCol, err := t.Float(AmountColumn)
	if err != nil {
		return nil, err
	}

	scaledTime := p.scaler.Transform(timeCol)
	scaledAmount := p.scaler.Transform(amountCol)
	if len(scaledTime) != t.Len() || len(scaledAmount) != t.Len() {
		return nil, errors.New("scaler returned a column of the wrong length")
	}

	components := make([][]float64, NumComponents)
	for i, name := range componentColumns() {
		if components[i], err = t.Float(name); err != nil {
			return nil, err
		}
	}

	out := make([][]float64, t.Len())
	for r := range out {
		vec := make([]float64, NumFeatures)
		vec[0] = scaledTime[r]
		vec[1] = scaledAmount[r]
		for c := range components {
			vec[c+2] = components[c][r]
		}
		out[r] = vec
	}
	return out, nil
}
