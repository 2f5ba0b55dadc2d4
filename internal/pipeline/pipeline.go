package pipeline

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-guard/internal/alert"
	"traffic-guard/internal/detector"
	"traffic-guard/internal/history"
	"traffic-guard/internal/metrics"
	"traffic-guard/internal/model"
	"traffic-guard/internal/query"
	"traffic-guard/internal/store"
)

// Publisher receives scored records and alerts for read-side consumers
// (REST snapshots, WebSocket streams). Implementations must not block.
type Publisher interface {
	PublishRecord(rec model.ScoredRecord)
	PublishAlert(a model.Alert)
}

// Options configures one pipeline instance.
type Options struct {
	Category      model.Category
	Window        string
	FetchLimit    int
	Interval      time.Duration
	HistoryCap    int
	Threshold     float64
	AlertsEnabled bool
}

// Pipeline owns the detection loop for a single traffic category:
// fetch -> score -> append -> (maybe) alert, driven by a fixed-interval
// tick. The history buffer and the alerting toggle are the only mutable
// shared state, and both are owned here; external callers read snapshots or
// push configuration that takes effect on the next run.
type Pipeline struct {
	category   model.Category
	window     string
	fetchLimit int
	interval   time.Duration

	adapter    query.Adapter
	detector   *detector.Detector
	dispatcher *alert.Dispatcher
	store      *store.Store
	publisher  Publisher
	history    *history.Buffer
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	thresholdBits atomic.Uint64
	alertsEnabled atomic.Bool
	running       atomic.Bool
}

// Stats is a read snapshot of the pipeline's detection history.
type Stats struct {
	Category      model.Category `json:"category"`
	Total         int            `json:"total"`
	Attacks       int            `json:"attacks"`
	AttackRate    float64        `json:"attack_rate"`
	RecentAttacks int            `json:"recent_attacks"`
	Threshold     float64        `json:"threshold"`
	AlertsEnabled bool           `json:"alerts_enabled"`
}

// NewPipeline wires a pipeline instance. store, publisher and m may be nil.
func NewPipeline(opts Options, adapter query.Adapter, det *detector.Detector, dispatcher *alert.Dispatcher, st *store.Store, publisher Publisher, m *metrics.Metrics, logger *logrus.Logger) *Pipeline {
	if opts.Window == "" {
		opts.Window = "-24h"
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}

	p := &Pipeline{
		category:   opts.Category,
		window:     opts.Window,
		fetchLimit: opts.FetchLimit,
		interval:   opts.Interval,
		adapter:    adapter,
		detector:   det,
		dispatcher: dispatcher,
		store:      st,
		publisher:  publisher,
		history:    history.NewBuffer(opts.HistoryCap),
		metrics:    m,
		logger:     logger,
	}

	p.SetThreshold(opts.Threshold)
	p.alertsEnabled.Store(opts.AlertsEnabled)
	return p
}

// Run drives the pipeline until the context is cancelled. A tick that
// arrives while the previous run is still in flight is skipped, never
// overlapped.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Infof("Starting %s pipeline (interval: %v, window: %s)", p.category, p.interval, p.window)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-ctx.Done():
			p.logger.Infof("Stopping %s pipeline", p.category)
			return
		}
	}
}

// RunOnce performs one fetch/score/append/alert cycle. No stage failure
// aborts the run: the scorer fails open, a fetch failure yields an empty
// run, an alert failure is an outcome. RunOnce never returns an error for
// those; the buffer stays usable either way.
func (p *Pipeline) RunOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debugf("%s pipeline run still in flight, skipping tick", p.category)
		p.countRun("skipped")
		return
	}
	defer p.running.Store(false)

	records, err := p.adapter.Fetch(ctx, p.category, p.window, p.fetchLimit)
	if err != nil {
		p.logger.Warnf("Fetch failed for %s, continuing with empty batch: %v", p.category, err)
		if p.metrics != nil {
			p.metrics.FetchErrors.WithLabelValues(p.category.String()).Inc()
		}
		p.countRun("fetch_error")
		return
	}

	if p.metrics != nil {
		p.metrics.RecordsFetched.WithLabelValues(p.category.String()).Add(float64(len(records)))
	}

	threshold := p.Threshold()
	enabled := p.AlertsEnabled()

	for _, rec := range records {
		if ctx.Err() != nil {
			// Teardown mid-run: records not yet scored are discarded,
			// nothing partial reaches the buffer.
			p.countRun("cancelled")
			return
		}
		p.process(ctx, rec, threshold, enabled)
	}

	p.countRun("ok")
}

func (p *Pipeline) process(ctx context.Context, rec model.FeatureRecord, threshold float64, alertsEnabled bool) {
	scored, err := p.detector.Detect(ctx, rec, threshold)
	if err != nil {
		var confErr *model.ConfigurationError
		if errors.As(err, &confErr) {
			p.logger.Errorf("Dropping misconfigured %s record: %v", p.category, err)
			return
		}
		p.logger.Errorf("Unexpected detect error for %s record: %v", p.category, err)
		return
	}

	p.history.Append(scored)

	if p.metrics != nil {
		p.metrics.RecordsScored.WithLabelValues(p.category.String()).Inc()
		p.metrics.HistoryLength.WithLabelValues(p.category.String()).Set(float64(p.history.Len()))
		if scored.IsAnomaly {
			p.metrics.AnomaliesTotal.WithLabelValues(p.category.String()).Inc()
		}
	}

	if p.store != nil {
		if err := p.store.InsertPrediction(scored); err != nil {
			p.logger.Warnf("Failed to persist %s prediction: %v", p.category, err)
			if p.metrics != nil {
				p.metrics.StoreErrors.WithLabelValues(p.category.String()).Inc()
			}
		}
	}

	if p.publisher != nil {
		p.publisher.PublishRecord(scored)
	}

	outcome, builtAlert := p.dispatcher.Dispatch(scored, alertsEnabled)
	if p.metrics != nil {
		p.metrics.AlertOutcomes.WithLabelValues(p.category.String(), string(outcome.Status)).Inc()
	}
	if outcome.Status == alert.StatusFailed {
		p.logger.Warnf("Alert dispatch failed for %s record %s: %s", p.category, scored.ID, outcome.Reason)
	}
	if builtAlert != nil && p.publisher != nil {
		p.publisher.PublishAlert(*builtAlert)
	}
}

// Predict scores a single manually entered record with the current
// threshold, feeding it through the same append/persist/alert path as
// fetched records.
func (p *Pipeline) Predict(ctx context.Context, fields map[string]float64) (model.ScoredRecord, error) {
	rec := model.FeatureRecord{
		Timestamp: time.Now(),
		Category:  p.category,
		Fields:    fields,
	}

	scored, err := p.detector.Detect(ctx, rec, p.Threshold())
	if err != nil {
		return model.ScoredRecord{}, err
	}

	p.history.Append(scored)
	if p.metrics != nil {
		p.metrics.RecordsScored.WithLabelValues(p.category.String()).Inc()
		if scored.IsAnomaly {
			p.metrics.AnomaliesTotal.WithLabelValues(p.category.String()).Inc()
		}
	}

	if p.store != nil {
		if err := p.store.InsertPrediction(scored); err != nil {
			p.logger.Warnf("Failed to persist %s prediction: %v", p.category, err)
		}
	}
	if p.publisher != nil {
		p.publisher.PublishRecord(scored)
	}

	outcome, builtAlert := p.dispatcher.Dispatch(scored, p.AlertsEnabled())
	if p.metrics != nil {
		p.metrics.AlertOutcomes.WithLabelValues(p.category.String(), string(outcome.Status)).Inc()
	}
	if builtAlert != nil && p.publisher != nil {
		p.publisher.PublishAlert(*builtAlert)
	}

	return scored, nil
}

// Category returns the traffic category this pipeline owns.
func (p *Pipeline) Category() model.Category {
	return p.category
}

// Snapshot returns the last n scored records, oldest-first.
func (p *Pipeline) Snapshot(n int) []model.ScoredRecord {
	return p.history.Recent(n)
}

// All returns the whole retained history, oldest-first.
func (p *Pipeline) All() []model.ScoredRecord {
	return p.history.All()
}

// Attacks returns the last n anomalous records.
func (p *Pipeline) Attacks(n int) []model.ScoredRecord {
	return p.history.Attacks(n)
}

// Stats summarizes the retained history.
func (p *Pipeline) Stats() Stats {
	all := p.history.All()

	stats := Stats{
		Category:      p.category,
		Total:         len(all),
		Threshold:     p.Threshold(),
		AlertsEnabled: p.AlertsEnabled(),
	}

	recentCutoff := time.Now().Add(-time.Hour)
	for i := range all {
		if all[i].IsAnomaly {
			stats.Attacks++
			if all[i].Timestamp.After(recentCutoff) {
				stats.RecentAttacks++
			}
		}
	}
	if stats.Total > 0 {
		stats.AttackRate = float64(stats.Attacks) / float64(stats.Total)
	}

	return stats
}

// Threshold returns the cutoff used for the next run.
func (p *Pipeline) Threshold() float64 {
	return math.Float64frombits(p.thresholdBits.Load())
}

// SetThreshold updates the cutoff. Takes effect on the next run; records
// already scored are never re-evaluated.
func (p *Pipeline) SetThreshold(threshold float64) {
	p.thresholdBits.Store(math.Float64bits(threshold))
}

// AlertsEnabled reports the alerting toggle.
func (p *Pipeline) AlertsEnabled() bool {
	return p.alertsEnabled.Load()
}

// SetAlertsEnabled flips the alerting toggle for subsequent runs.
func (p *Pipeline) SetAlertsEnabled(enabled bool) {
	p.alertsEnabled.Store(enabled)
}

func (p *Pipeline) countRun(result string) {
	if p.metrics != nil {
		p.metrics.PipelineRuns.WithLabelValues(p.category.String(), result).Inc()
	}
}
