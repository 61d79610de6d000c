package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

func TestScored(t *testing.T) {
	m := New()
	m.Scored("/predict", pipeline.Summary{TotalTransactions: 10, PredictedFrauds: 3}, 20*time.Millisecond)
	m.Scored("/predict", pipeline.Summary{TotalTransactions: 5, PredictedFrauds: 1}, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("/predict", OutcomeScored)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.transactions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.frauds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestOutcomeAndCache(t *testing.T) {
	m := New()
	m.Outcome("/predict/download", OutcomeRejected)
	m.Outcome("/predict", OutcomeUnsupported)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("/predict/download", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("/predict", OutcomeUnsupported)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Scored("/predict", pipeline.Summary{TotalTransactions: 1}, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fraudshield_transactions_scored_total 1")
	assert.Contains(t, string(body), "fraudshield_batch_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
