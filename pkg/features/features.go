// Package features maps raw transaction rows into the feature vectors the
// scoring models were trained on.
package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// TimeColumn is the elapsed-time field of a raw transaction row.
	TimeColumn = "Time"
	// AmountColumn is the monetary amount field of a raw transaction row.
	AmountColumn = "Amount"

	// ScaledTime and ScaledAmount replace the raw time and amount fields.
	ScaledTime   = "scaled_time"
	ScaledAmount = "scaled_amount"

	// NumComponents is the number of anonymized principal components V1..V28.
	NumComponents = 28
	// NumFeatures is the length of a feature vector.
	NumFeatures = NumComponents + 2
)

// RawColumns returns the required raw columns: Time, V1..V28, Amount.
func RawColumns() []string {
	cols := make([]string, 0, NumFeatures)
	cols = append(cols, TimeColumn)
	cols = append(cols, componentColumns()...)
	return append(cols, AmountColumn)
}

// FeatureNames returns the canonical feature vector order:
// scaled_time, scaled_amount, V1..V28.
func FeatureNames() []string {
	cols := make([]string, 0, NumFeatures)
	cols = append(cols, ScaledTime, ScaledAmount)
	return append(cols, componentColumns()...)
}

func componentColumns() []string {
	cols := make([]string, NumComponents)
	for i := range cols {
		cols[i] = fmt.Sprintf("V%d", i+1)
	}
	return cols
}

// SchemaError reports required columns absent from a table.
type SchemaError struct {
	// Missing is the sorted list of absent column names.
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(e.Missing, ", "))
}

// Table is a batch of rows with named columns. Cells keep their original
// text so columns the models do not use round-trip untouched.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the named column or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Missing returns the sorted names from required that the table lacks.
func (t Table) Missing(required []string) []string {
	present := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		present[c] = struct{}{}
	}

	var missing []string
	for _, c := range required {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}

// Validate returns a *SchemaError if any required raw column is absent.
func (t Table) Validate() error {
	if missing := t.Missing(RawColumns()); len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// Float parses the named column as numbers.
func (t Table) Float(name string) ([]float64, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, &SchemaError{Missing: []string{name}}
	}

	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		if idx >= len(row) {
			return nil, errors.Errorf("row %d: short row, no value for column %s", i, name)
		}
		v, err := ParseValue(row[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: column %s", i, name)
		}
		out[i] = v
	}
	return out, nil
}

// ParseValue parses a single numeric cell.
func ParseValue(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid numeric value %q", cell)
	}
	return v, nil
}
