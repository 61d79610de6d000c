// Package fusion blends a classifier probability and a reconstruction-error
// anomaly signal into a single hybrid risk score and a fraud decision.
package fusion

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// ClassifierWeight and AnomalyWeight are the fixed blend weights.
	ClassifierWeight = 0.5
	AnomalyWeight    = 0.5

	// Threshold is the hybrid score a row must strictly exceed to be flagged.
	Threshold = 50.0

	// Precision is the number of decimals kept in reported percentages.
	Precision = 2

	percent = 100
)

// Score is the fused result for one row. All percentages are rounded to
// Precision decimals.
type Score struct {
	FraudProbability float64 `json:"Fraud Probability (%)"`
	AnomalyScore     float64 `json:"Anomaly Score (%)"`
	HybridRiskScore  float64 `json:"Hybrid Risk Score (%)"`
	Prediction       int     `json:"Prediction"`
}

// IsFraud reports whether the row was flagged.
func (s Score) IsFraud() bool {
	return s.Prediction == 1
}

// Normalize min-max scales raw over the current batch only. When every value
// is equal, including a batch of one, all normalized values are 0.
func Normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	lo, hi := floats.Min(raw), floats.Max(raw)
	if hi-lo == 0 {
		return out
	}

	span := hi - lo
	for i, v := range raw {
		out[i] = (v - lo) / span
	}
	return out
}

// Fuse combines per-row classifier probabilities with raw anomaly signals.
// The anomaly signal is normalized relative to this batch, so a row's
// anomaly score depends on the other rows it is scored with.
func Fuse(probabilities, anomalies []float64) ([]Score, error) {
	if len(probabilities) != len(anomalies) {
		return nil, errors.Errorf("signal length mismatch: %d probabilities, %d anomaly scores",
			len(probabilities), len(anomalies))
	}
	for i, p := range probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, errors.Errorf("row %d: probability %v outside [0, 1]", i, p)
		}
	}
	for i, a := range anomalies {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return nil, errors.Errorf("row %d: non-finite anomaly signal", i)
		}
	}

	normalized := Normalize(anomalies)

	scores := make([]Score, len(probabilities))
	for i, p := range probabilities {
		n := normalized[i]
		hybrid := Round(((ClassifierWeight * p) + (AnomalyWeight * n)) * percent)

		s := Score{
			FraudProbability: Round(p * percent),
			AnomalyScore:     Round(n * percent),
			HybridRiskScore:  hybrid,
		}
		if hybrid > Threshold {
			s.Prediction = 1
		}
		scores[i] = s
	}
	return scores, nil
}

// Round rounds half to even at Precision decimals.
func Round(x float64) float64 {
	return scalar.RoundEven(x, Precision)
}
