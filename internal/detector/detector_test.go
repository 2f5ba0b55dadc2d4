package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-guard/internal/client"
	"traffic-guard/internal/metrics"
	"traffic-guard/internal/model"
)

type stubScorer struct {
	result *client.ScoreResult
	err    error
	calls  int
	fields map[string]float64
}

func (s *stubScorer) Score(ctx context.Context, category model.Category, fields map[string]float64) (*client.ScoreResult, error) {
	s.calls++
	s.fields = fields
	return s.result, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func dnsRecord() model.FeatureRecord {
	return model.FeatureRecord{
		Timestamp: time.Now(),
		Category:  model.CategoryDNS,
		Fields:    map[string]float64{"dns_rate": 150, "inter_arrival_time": 0.005},
	}
}

func TestDetectLabelsAttackAboveThreshold(t *testing.T) {
	scorer := &stubScorer{result: &client.ScoreResult{Anomaly: 1, Score: 0.8, ModelVersion: "v1.0"}}
	d := NewDetector(scorer, nil, testLogger())

	scored, err := d.Detect(context.Background(), dnsRecord(), 0.1)
	require.NoError(t, err)

	assert.True(t, scored.IsAnomaly)
	assert.Equal(t, model.LabelAttack, scored.Label)
	assert.Equal(t, 0.8, scored.Score)
	assert.Equal(t, "v1.0", scored.ModelVersion)
	assert.Equal(t, 1, scorer.calls)
	assert.NotEmpty(t, scored.ID)
}

func TestDetectBoundaryScoreIsNormal(t *testing.T) {
	scorer := &stubScorer{result: &client.ScoreResult{Anomaly: 1, Score: 0.1}}
	d := NewDetector(scorer, nil, testLogger())

	scored, err := d.Detect(context.Background(), dnsRecord(), 0.1)
	require.NoError(t, err)

	assert.False(t, scored.IsAnomaly, "score == threshold must not be anomalous")
	assert.Equal(t, model.LabelNormal, scored.Label)
}

func TestDetectInvariantHoldsAcrossThresholds(t *testing.T) {
	for _, tc := range []struct {
		score     float64
		threshold float64
		anomaly   bool
	}{
		{0.5, 0.1, true},
		{0.1, 0.5, false},
		{0.0, 0.0, false},
		{0.0001, 0.0, true},
		{1.0, 1.0, false},
	} {
		scorer := &stubScorer{result: &client.ScoreResult{Score: tc.score}}
		d := NewDetector(scorer, nil, testLogger())

		scored, err := d.Detect(context.Background(), dnsRecord(), tc.threshold)
		require.NoError(t, err)
		assert.Equal(t, tc.anomaly, scored.IsAnomaly, "score=%v threshold=%v", tc.score, tc.threshold)
		assert.Equal(t, scored.Score > tc.threshold, scored.IsAnomaly)
	}
}

func TestDetectMissingFieldIsConfigurationError(t *testing.T) {
	scorer := &stubScorer{result: &client.ScoreResult{Score: 0.9}}
	d := NewDetector(scorer, nil, testLogger())

	rec := model.FeatureRecord{
		Category: model.CategoryDoS,
		Fields:   map[string]float64{"packet_rate": 100, "packet_length": 500},
	}

	_, err := d.Detect(context.Background(), rec, 0.1)
	require.Error(t, err)

	var confErr *model.ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "inter_arrival_time", confErr.Field)
	assert.Zero(t, scorer.calls, "scorer must not be called for invalid records")
}

func TestDetectSendsOnlyRequiredFields(t *testing.T) {
	scorer := &stubScorer{result: &client.ScoreResult{Score: 0.2}}
	d := NewDetector(scorer, nil, testLogger())

	rec := dnsRecord()
	rec.Fields["extra_debug_field"] = 42

	_, err := d.Detect(context.Background(), rec, 0.1)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"dns_rate": 150, "inter_arrival_time": 0.005}, scorer.fields)
}

func TestDetectFailOpenOnScorerError(t *testing.T) {
	scorer := &stubScorer{err: &model.TransportError{Op: "score", Err: context.DeadlineExceeded}}
	d := NewDetector(scorer, nil, testLogger())

	scored, err := d.Detect(context.Background(), dnsRecord(), 0.1)
	require.NoError(t, err, "scorer failure must not propagate")

	assert.False(t, scored.IsAnomaly)
	assert.Zero(t, scored.Score)
	assert.Equal(t, model.LabelNormal, scored.Label)
}

func TestDetectFailOpenOnMalformedResponse(t *testing.T) {
	scorer := &stubScorer{err: &model.MalformedResponseError{Op: "score", Detail: "missing anomaly"}}
	d := NewDetector(scorer, nil, testLogger())

	scored, err := d.Detect(context.Background(), dnsRecord(), 0.1)
	require.NoError(t, err)

	assert.False(t, scored.IsAnomaly)
	assert.Zero(t, scored.Score)
}

func TestDetectClassifiesWrappedMalformedResponse(t *testing.T) {
	wrapped := fmt.Errorf("failed to score dns record: %w",
		&model.MalformedResponseError{Op: "score", Detail: "missing anomaly"})
	scorer := &stubScorer{err: wrapped}
	m := metrics.NewMetrics()
	d := NewDetector(scorer, m, testLogger())

	scored, err := d.Detect(context.Background(), dnsRecord(), 0.1)
	require.NoError(t, err)
	assert.False(t, scored.IsAnomaly)

	malformed := testutil.ToFloat64(m.ScorerFailures.WithLabelValues("dns", "malformed_response"))
	transport := testutil.ToFloat64(m.ScorerFailures.WithLabelValues("dns", "transport"))
	assert.Equal(t, 1.0, malformed, "wrapped malformed responses must not count as transport failures")
	assert.Equal(t, 0.0, transport)
}

func TestDetectUnknownCategory(t *testing.T) {
	d := NewDetector(&stubScorer{}, nil, testLogger())

	_, err := d.Detect(context.Background(), model.FeatureRecord{Category: "icmp"}, 0.1)

	var confErr *model.ConfigurationError
	require.ErrorAs(t, err, &confErr)
}
