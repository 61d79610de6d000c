// Package pipeline drives a batch of transactions through feature
// preparation, dual-model inference and score fusion.
package pipeline

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hed1ad/fraudshield/pkg/detectors"
	"github.com/hed1ad/fraudshield/pkg/features"
	"github.com/hed1ad/fraudshield/pkg/fusion"
)

// SchemaError reports required raw columns absent from a batch.
type SchemaError = features.SchemaError

// ErrEmptyBatch is returned for a batch with no rows.
var ErrEmptyBatch = errors.New("empty batch")

// Pipeline scores transaction batches. Its handles are set once by New and
// never modified, so one Pipeline serves concurrent callers.
type Pipeline struct {
	preparer   *features.Preparer
	classifier detectors.Scorer
	anomaly    detectors.Scorer
}

// New creates a Pipeline. classifier must return P(fraud) per row; anomaly
// returns a raw anomaly signal (higher is more anomalous) per row.
func New(scaler features.Scaler, classifier, anomaly detectors.Scorer) (*Pipeline, error) {
	if scaler == nil {
		return nil, errors.New("scaler required")
	}
	if classifier == nil {
		return nil, errors.New("classifier required")
	}
	if anomaly == nil {
		return nil, errors.New("anomaly scorer required")
	}

	return &Pipeline{
		preparer:   features.NewPreparer(scaler),
		classifier: classifier,
		anomaly:    anomaly,
	}, nil
}

// Run scores every row of t. Input columns, including ones the models do not
// use, are carried into the result unchanged. A batch either fully succeeds
// or fails.
func (p *Pipeline) Run(t features.Table) (*Result, error) {
	start := time.Now()

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, ErrEmptyBatch
	}

	vectors, err := p.preparer.Prepare(t)
	if err != nil {
		return nil, errors.Wrap(err, "error preparing features")
	}

	probabilities, err := score(p.classifier, vectors)
	if err != nil {
		return nil, errors.Wrap(err, "error running classifier")
	}

	anomalies, err := score(p.anomaly, vectors)
	if err != nil {
		return nil, errors.Wrap(err, "error running anomaly model")
	}

	scores, err := fusion.Fuse(probabilities, anomalies)
	if err != nil {
		return nil, errors.Wrap(err, "error fusing scores")
	}

	res := &Result{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, t.Len()),
		Summary: Summarize(scores),
	}
	for i, row := range t.Rows {
		res.Rows[i] = Row{
			Values: append([]string(nil), row...),
			Score:  scores[i],
		}
	}

	log.WithFields(log.Fields{
		"rows":     res.Summary.TotalTransactions,
		"frauds":   res.Summary.PredictedFrauds,
		"duration": time.Since(start),
	}).Debug("batch scored")

	return res, nil
}

func score(s detectors.Scorer, vectors [][]float64) ([]float64, error) {
	out, err := s.Score(vectors)
	if err != nil {
		return nil, err
	}
	if len(out) != len(vectors) {
		return nil, errors.Errorf("expected %d scores, got %d", len(vectors), len(out))
	}
	return out, nil
}
