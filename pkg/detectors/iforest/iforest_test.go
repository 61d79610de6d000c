package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudshield/pkg/detectors"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithConfig(detectors.DefaultConfig()), WithSeed(123)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "ragged data",
			data:    [][]float64{{1, 2}, {1}},
			wantErr: true,
		},
		{
			name:    "single sample",
			data:    [][]float64{{1.0, 2.0, 3.0}},
			wantErr: false,
		},
		{
			name:    "normal data",
			data:    generateTestData(100, 5),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithTrees(10), WithSeed(42))
			err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, f.trained)
				assert.Len(t, f.trees, f.nTrees)
			}
		})
	}
}

func TestScore(t *testing.T) {
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Score(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("anomalies score higher", func(t *testing.T) {
		scores, err := f.Score([][]float64{
			{0, 0, 0, 0, 0},
			{1000, 1000, 1000, 1000, 1000},
		})

		require.NoError(t, err)
		assert.Greater(t, scores[1], scores[0])
		assert.Greater(t, scores[1], 0.4, "anomalies should have high scores")
	})

	t.Run("wrong width", func(t *testing.T) {
		_, err := f.Score([][]float64{{1, 2}})
		assert.Error(t, err)
	})

	t.Run("score before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Score(trainData)
		assert.Error(t, err)
	})
}

func TestSingleSampleForest(t *testing.T) {
	f := New(WithTrees(5))
	require.NoError(t, f.Fit([][]float64{{1, 2}}))

	scores, err := f.Score([][]float64{{1, 2}, {5, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, scores)
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(200, 4)
	original := New(WithTrees(30), WithSeed(42))
	require.NoError(t, original.Fit(trainData))

	testData := generateTestData(50, 4)
	originalScores, err := original.Score(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	loadedScores, err := loaded.Score(testData)
	require.NoError(t, err)

	assert.Equal(t, originalScores, loadedScores)
}

func TestSaveUntrained(t *testing.T) {
	_, err := New().Save()
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	f := New()
	assert.Error(t, f.Load([]byte("garbage")))
	assert.False(t, f.trained)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkScore(b *testing.B) {
	trainData := generateTestData(5000, 10)
	testData := generateTestData(1000, 10)

	f := New(WithTrees(100), WithSampleSize(256))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Score(testData)
	}
}

func generateTestData(n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rand.NormFloat64()
		}
	}
	return data
}
