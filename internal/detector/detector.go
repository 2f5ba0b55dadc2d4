package detector

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-guard/internal/client"
	"traffic-guard/internal/metrics"
	"traffic-guard/internal/model"
)

// Detector turns a raw feature record into a scored one by calling the
// scorer exactly once and applying the threshold policy.
//
// Scorer failures are recovered fail-open: the record comes back with
// score 0 and no anomaly flag, and the failure surfaces only through logs
// and metrics. This trades detection completeness for pipeline liveness and
// is a deliberate policy, not a bug.
type Detector struct {
	scorer  client.Scorer
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewDetector creates a detector. metrics may be nil.
func NewDetector(scorer client.Scorer, m *metrics.Metrics, logger *logrus.Logger) *Detector {
	return &Detector{
		scorer:  scorer,
		metrics: m,
		logger:  logger,
	}
}

// Detect scores rec against the threshold in effect right now. The returned
// record is a deterministic function of the feature values, the score and
// that threshold; it is never re-evaluated later.
//
// The only error returned is a ConfigurationError for a record missing a
// field its category requires: that is the caller's bug, not a runtime
// anomaly.
func (d *Detector) Detect(ctx context.Context, rec model.FeatureRecord, threshold float64) (model.ScoredRecord, error) {
	required, err := requiredPayload(rec)
	if err != nil {
		return model.ScoredRecord{}, err
	}

	scored := model.ScoredRecord{
		FeatureRecord: rec,
		ID:            uuid.New().String(),
		Label:         model.LabelNormal,
	}
	if scored.Timestamp.IsZero() {
		scored.Timestamp = time.Now()
	}

	start := time.Now()
	result, err := d.scorer.Score(ctx, rec.Category, required)
	if d.metrics != nil {
		d.metrics.ScorerLatency.WithLabelValues(rec.Category.String()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		d.failOpen(rec.Category, err)
		return scored, nil
	}

	scored.Score = result.Score
	scored.ModelVersion = result.ModelVersion
	scored.LatencySec = result.LatencySec

	// Strict comparison: a boundary-equal score is Normal.
	if result.Score > threshold {
		scored.IsAnomaly = true
		scored.Label = model.LabelAttack
	}

	return scored, nil
}

// requiredPayload extracts exactly the category's required fields, so extra
// fields on the record never leak into the scoring call.
func requiredPayload(rec model.FeatureRecord) (map[string]float64, error) {
	names := rec.Category.RequiredFields()
	if names == nil {
		return nil, &model.ConfigurationError{Category: rec.Category, Field: "category"}
	}

	payload := make(map[string]float64, len(names))
	for _, name := range names {
		value, ok := rec.Fields[name]
		if !ok {
			return nil, &model.ConfigurationError{Category: rec.Category, Field: name}
		}
		payload[name] = value
	}
	return payload, nil
}

func (d *Detector) failOpen(category model.Category, err error) {
	reason := "transport"
	var malformed *model.MalformedResponseError
	if errors.As(err, &malformed) {
		reason = "malformed_response"
	}

	if d.metrics != nil {
		d.metrics.ScorerFailures.WithLabelValues(category.String(), reason).Inc()
	}
	d.logger.Warnf("Scorer failed for %s record, continuing fail-open: %v", category, err)
}
