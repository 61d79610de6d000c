package pipeline

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hed1ad/fraudshield/pkg/features"
	"github.com/hed1ad/fraudshield/pkg/fusion"
)

// Columns appended to every scored row, in output order.
const (
	FraudProbabilityColumn = "Fraud Probability (%)"
	AnomalyScoreColumn     = "Anomaly Score (%)"
	HybridRiskScoreColumn  = "Hybrid Risk Score (%)"
	PredictionColumn       = "Prediction"
)

// ScoreColumns returns the derived columns in output order.
func ScoreColumns() []string {
	return []string{FraudProbabilityColumn, AnomalyScoreColumn, HybridRiskScoreColumn, PredictionColumn}
}

// Summary aggregates a scored batch.
type Summary struct {
	TotalTransactions int     `json:"total_transactions"`
	PredictedFrauds   int     `json:"predicted_frauds"`
	FraudPercentage   float64 `json:"fraud_percentage"`
}

// Summarize counts flagged rows. An empty batch has a zero percentage.
func Summarize(scores []fusion.Score) Summary {
	s := Summary{TotalTransactions: len(scores)}
	for _, sc := range scores {
		s.PredictedFrauds += sc.Prediction
	}
	if s.TotalTransactions > 0 {
		s.FraudPercentage = fusion.Round((float64(s.PredictedFrauds) / float64(s.TotalTransactions)) * 100)
	}
	return s
}

// Row is an input row, verbatim, plus its derived scores.
type Row struct {
	Values []string
	Score  fusion.Score
}

// Result is a scored batch.
type Result struct {
	// Columns are the input column names, in input order.
	Columns []string
	Rows    []Row
	Summary Summary
}

// Header returns the input columns followed by ScoreColumns.
func (r *Result) Header() []string {
	h := make([]string, 0, len(r.Columns)+4)
	h = append(h, r.Columns...)
	return append(h, ScoreColumns()...)
}

// Table returns the result as a table of text cells, original columns first.
func (r *Result) Table() features.Table {
	t := features.Table{Columns: r.Header(), Rows: make([][]string, len(r.Rows))}
	for i, row := range r.Rows {
		t.Rows[i] = row.Strings()
	}
	return t
}

// Strings returns the row's cells: original values then derived scores.
func (row Row) Strings() []string {
	out := make([]string, 0, len(row.Values)+4)
	out = append(out, row.Values...)
	return append(out,
		FormatPercent(row.Score.FraudProbability),
		FormatPercent(row.Score.AnomalyScore),
		FormatPercent(row.Score.HybridRiskScore),
		strconv.Itoa(row.Score.Prediction),
	)
}

// FormatPercent renders a percentage the way it appears in CSV output:
// shortest representation, always with a decimal point.
func FormatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Records returns one ordered record per row for JSON output.
func (r *Result) Records() []Record {
	header := r.Header()
	out := make([]Record, len(r.Rows))
	for i, row := range r.Rows {
		values := make([]any, 0, len(header))
		for _, cell := range row.Values {
			values = append(values, jsonValue(cell))
		}
		values = append(values,
			row.Score.FraudProbability,
			row.Score.AnomalyScore,
			row.Score.HybridRiskScore,
			row.Score.Prediction,
		)
		out[i] = Record{keys: header, values: values}
	}
	return out
}

// jsonValue emits numeric cells as numbers and anything else as text.
func jsonValue(cell string) any {
	v, err := features.ParseValue(cell)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return cell
	}
	return v
}

// Record is a JSON object that keeps its keys in column order.
type Record struct {
	keys   []string
	values []any
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.keys {
		if k == key {
			return r.values[i], true
		}
	}
	return nil, false
}

// Keys returns the record's keys in order.
func (r Record) Keys() []string {
	return r.keys
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		var v any
		if i < len(r.values) {
			v = r.values[i]
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
