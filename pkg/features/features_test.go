package features

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns(t *testing.T) {
	raw := RawColumns()
	require.Len(t, raw, NumFeatures)
	assert.Equal(t, "Time", raw[0])
	assert.Equal(t, "V1", raw[1])
	assert.Equal(t, "V28", raw[28])
	assert.Equal(t, "Amount", raw[29])

	names := FeatureNames()
	require.Len(t, names, NumFeatures)
	assert.Equal(t, []string{"scaled_time", "scaled_amount", "V1"}, names[:3])
	assert.Equal(t, "V28", names[29])

	// callers get their own copy
	raw[0] = "changed"
	assert.Equal(t, "Time", RawColumns()[0])
}

func TestTableMissing(t *testing.T) {
	tests := []struct {
		name    string
		drop    []string
		missing []string
	}{
		{
			name: "complete",
		},
		{
			name:    "single",
			drop:    []string{"Amount"},
			missing: []string{"Amount"},
		},
		{
			name:    "sorted",
			drop:    []string{"V9", "Time", "V10", "Amount"},
			missing: []string{"Amount", "Time", "V10", "V9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := dropColumns(generateTable(2), tt.drop...)
			assert.Equal(t, tt.missing, tbl.Missing(RawColumns()))

			err := tbl.Validate()
			if len(tt.missing) == 0 {
				assert.NoError(t, err)
				return
			}
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.missing, schemaErr.Missing)
			assert.Contains(t, err.Error(), tt.missing[0])
		})
	}
}

func TestTableFloat(t *testing.T) {
	tbl := Table{
		Columns: []string{"a", "b"},
		Rows:    [][]string{{"1.5", " 2 "}, {"-3e2", "x"}},
	}

	a, err := tbl.Float("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -300}, a)

	_, err = tbl.Float("b")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = tbl.Float("c")
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestLinearScaler(t *testing.T) {
	tests := []struct {
		name  string
		kind  ScalerKind
		shift float64
		scale float64
		in    []float64
		want  []float64
	}{
		{
			name:  "standard",
			kind:  StandardScaler,
			shift: 10,
			scale: 2,
			in:    []float64{10, 14, 6},
			want:  []float64{0, 2, -2},
		},
		{
			name:  "robust",
			kind:  RobustScaler,
			shift: 1,
			scale: 4,
			in:    []float64{1, 9},
			want:  []float64{0, 2},
		},
		{
			name:  "minmax",
			kind:  MinMaxScaler,
			shift: -1,
			scale: 0.5,
			in:    []float64{2, 4},
			want:  []float64{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLinearScaler(tt.kind, tt.shift, tt.scale)
			require.NoError(t, err)

			in := append([]float64(nil), tt.in...)
			assert.Equal(t, tt.want, s.Transform(in))
			assert.Equal(t, tt.in, in, "input must not be modified")
		})
	}
}

func TestLoadScaler(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name: "standard",
			json: `{"kind":"standard","mean":[88.35],"scale":[250.1]}`,
		},
		{
			name: "minmax",
			json: `{"kind":"minmax","min":[0],"scale":[0.001]}`,
		},
		{
			name:    "unknown kind",
			json:    `{"kind":"quantile","scale":[1]}`,
			wantErr: true,
		},
		{
			name:    "zero scale",
			json:    `{"kind":"standard","mean":[1],"scale":[0]}`,
			wantErr: true,
		},
		{
			name:    "multi feature",
			json:    `{"kind":"standard","mean":[1,2],"scale":[1,1]}`,
			wantErr: true,
		},
		{
			name:    "missing mean",
			json:    `{"kind":"standard","scale":[1]}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			json:    `{"kind":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadScaler(strings.NewReader(tt.json))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.Transform([]float64{1, 2, 3}), 3)
		})
	}
}

func TestPrepare(t *testing.T) {
	s, err := NewLinearScaler(StandardScaler, 100, 10)
	require.NoError(t, err)
	p := NewPreparer(s)

	tbl := generateTable(3)
	vectors, err := p.Prepare(tbl)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for r, vec := range vectors {
		require.Len(t, vec, NumFeatures)
		// Time = 100 + r, Amount = 200 + r
		assert.InDelta(t, float64(r)/10, vec[0], 1e-12)
		assert.InDelta(t, float64(100+r)/10, vec[1], 1e-12)
		for c := 1; c <= NumComponents; c++ {
			assert.Equal(t, componentValue(r, c), vec[c+1])
		}
	}
}

func TestPrepareColumnOrderIndependent(t *testing.T) {
	s, err := NewLinearScaler(MinMaxScaler, 0, 0.01)
	require.NoError(t, err)
	p := NewPreparer(s)

	tbl := generateTable(4)
	want, err := p.Prepare(tbl)
	require.NoError(t, err)

	got, err := p.Prepare(reverseColumns(tbl))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPrepareErrors(t *testing.T) {
	s, err := NewLinearScaler(StandardScaler, 0, 1)
	require.NoError(t, err)

	t.Run("missing columns", func(t *testing.T) {
		_, err := NewPreparer(s).Prepare(dropColumns(generateTable(1), "V3", "Time"))
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, []string{"Time", "V3"}, schemaErr.Missing)
	})

	t.Run("non numeric", func(t *testing.T) {
		tbl := generateTable(2)
		tbl.Rows[1][tbl.Index("V5")] = "abc"
		_, err := NewPreparer(s).Prepare(tbl)
		assert.Error(t, err)
	})

	t.Run("no scaler", func(t *testing.T) {
		_, err := NewPreparer(nil).Prepare(generateTable(1))
		assert.Error(t, err)
	})
}

// generateTable builds n rows with Time = 100+r, Amount = 200+r and
// Vc = componentValue(r, c), plus a leading id column.
func generateTable(n int) Table {
	cols := append([]string{"id"}, RawColumns()...)
	rows := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(cols))
		row[0] = "tx-" + strconv.Itoa(r)
		row[1] = strconv.Itoa(100 + r)
		for c := 1; c <= NumComponents; c++ {
			row[c+1] = strconv.FormatFloat(componentValue(r, c), 'g', -1, 64)
		}
		row[len(cols)-1] = strconv.Itoa(200 + r)
		rows[r] = row
	}
	return Table{Columns: cols, Rows: rows}
}

func componentValue(r, c int) float64 {
	return float64(r) + float64(c)/100
}

func dropColumns(t Table, names ...string) Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	var keep []int
	out := Table{}
	for i, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, i)
			out.Columns = append(out.Columns, c)
		}
	}
	for _, row := range t.Rows {
		nr := make([]string, 0, len(keep))
		for _, i := range keep {
			nr = append(nr, row[i])
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

func reverseColumns(t Table) Table {
	n := len(t.Columns)
	out := Table{Columns: make([]string, n)}
	for i, c := range t.Columns {
		out.Columns[n-1-i] = c
	}
	for _, row := range t.Rows {
		nr := make([]string, n)
		for i, v := range row {
			nr[n-1-i] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}
