package intake

import (
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudshield/pkg/features"
)

func TestSanitize(t *testing.T) {
	in := generateUpload(3)

	out, err := Sanitize(in)
	require.NoError(t, err)

	assert.Equal(t, features.RawColumns(), out.Columns)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "101", out.Rows[1][0], "Time")
	assert.Equal(t, "1.5", out.Rows[1][len(out.Columns)-1], "Amount")
	assert.NoError(t, out.Validate())
}

func TestSanitizeDropsIndexAndLabel(t *testing.T) {
	out, err := Sanitize(generateUpload(2))
	require.NoError(t, err)

	for _, c := range out.Columns {
		assert.NotEqual(t, LabelColumn, c)
		assert.NotContains(t, c, indexPrefix)
	}
	assert.Equal(t, -1, out.Index("note"))
}

func TestSanitizeEmpty(t *testing.T) {
	in := generateUpload(0)
	_, err := Sanitize(in)
	assert.ErrorIs(t, err, ErrEmptyUpload)
}

func TestSanitizeMissingColumns(t *testing.T) {
	in := generateUpload(2)
	in.Columns[in.Index("V7")] = "Unnamed: 7"
	in.Columns[in.Index("Time")] = "time"

	_, err := Sanitize(in)
	require.Error(t, err)

	var schemaErr *features.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"Time", "V7"}, schemaErr.Missing)
}

func TestSanitizeMissingValues(t *testing.T) {
	for _, token := range []string{"", " ", "NaN", "nan", "NA", "N/A", "NULL", "null", "None", "<NA>", "#N/A"} {
		t.Run(strconv.Quote(token), func(t *testing.T) {
			in := generateUpload(3)
			in.Rows[2][in.Index("V12")] = token

			_, err := Sanitize(in)
			assert.ErrorIs(t, err, ErrMissingValues)
		})
	}
}

func TestSanitizeIgnoresMissingInDroppedColumns(t *testing.T) {
	in := generateUpload(2)
	in.Rows[0][in.Index("note")] = ""
	in.Rows[1][in.Index(LabelColumn)] = "NaN"

	_, err := Sanitize(in)
	assert.NoError(t, err)
}

func TestSanitizeShortRow(t *testing.T) {
	in := generateUpload(2)
	in.Rows[1] = in.Rows[1][:5]

	_, err := Sanitize(in)
	assert.ErrorIs(t, err, ErrMissingValues)
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing("NaN"))
	assert.True(t, IsMissing("  "))
	assert.False(t, IsMissing("0"))
	assert.False(t, IsMissing("nano"))
}

// generateUpload mimics a labelled export written with its index column.
func generateUpload(n int) features.Table {
	cols := append([]string{"Unnamed: 0", "note"}, features.RawColumns()...)
	cols = append(cols, LabelColumn)

	rows := make([][]string, n)
	for r := range rows {
		row := []string{strconv.Itoa(r), "x", strconv.Itoa(100 + r)}
		for c := 1; c <= features.NumComponents; c++ {
			row = append(row, strconv.FormatFloat(float64(r)+float64(c)/10, 'f', -1, 64))
		}
		row = append(row, strconv.FormatFloat(0.5+float64(r), 'f', -1, 64), "0")
		rows[r] = row
	}
	return features.Table{Columns: cols, Rows: rows}
}
