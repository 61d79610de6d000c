// Package intake sanitizes uploaded transaction tables before scoring.
package intake

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/features"
)

var (
	// ErrEmptyUpload is returned for a table with no rows.
	ErrEmptyUpload = errors.New("uploaded CSV is empty")

	// ErrMissingValues is returned when a required cell holds a missing value.
	ErrMissingValues = errors.New("CSV contains missing values")
)

// LabelColumn is the ground-truth column of labelled exports. It is never
// scored.
const LabelColumn = "Class"

const indexPrefix = "Unnamed"

// missingTokens are the cell values read as missing by common dataframe tooling.
var missingTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// IsMissing reports whether cell denotes a missing value.
func IsMissing(cell string) bool {
	return missingTokens[strings.TrimSpace(cell)]
}

// Sanitize prepares an uploaded table for the pipeline. Index and label
// columns are dropped, the table is projected onto the raw columns in
// canonical order and any missing value rejects the whole upload.
func Sanitize(t features.Table) (features.Table, error) {
	if t.Len() == 0 {
		return features.Table{}, ErrEmptyUpload
	}

	kept := features.Table{}
	for _, c := range t.Columns {
		if strings.HasPrefix(c, indexPrefix) || c == LabelColumn {
			continue
		}
		kept.Columns = append(kept.Columns, c)
	}

	raw := features.RawColumns()
	if missing := kept.Missing(raw); len(missing) > 0 {
		return features.Table{}, &features.SchemaError{Missing: missing}
	}

	pos := make([]int, len(raw))
	for i, name := range raw {
		pos[i] = t.Index(name)
	}

	out := features.Table{Columns: raw, Rows: make([][]string, t.Len())}
	for r, row := range t.Rows {
		projected := make([]string, len(pos))
		for i, p := range pos {
			if p >= len(row) || IsMissing(row[p]) {
				return features.Table{}, errors.WithMessagef(ErrMissingValues, "row %d column %s", r, raw[i])
			}
			projected[i] = row[p]
		}
		out.Rows[r] = projected
	}
	return out, nil
}
