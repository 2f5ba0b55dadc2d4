package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"traffic-guard/internal/client"
	"traffic-guard/internal/model"
)

// PrometheusAdapter builds feature records from range queries against a
// Prometheus server, one series per feature field. Only instants where every
// required field has a sample become records.
type PrometheusAdapter struct {
	client  *client.PrometheusClient
	queries map[model.Category]map[string]string
	step    time.Duration
	timeout time.Duration
	logger  *logrus.Logger
}

// DefaultFieldQueries maps each category's required fields to the PromQL
// expression producing that feature.
func DefaultFieldQueries() map[model.Category]map[string]string {
	return map[model.Category]map[string]string{
		model.CategoryDNS: {
			"dns_rate":           `rate(dns_queries_total[1m])`,
			"inter_arrival_time": `dns_inter_arrival_seconds`,
		},
		model.CategoryDoS: {
			"packet_rate":        `rate(network_packets_total[1m])`,
			"packet_length":      `network_packet_length_bytes`,
			"inter_arrival_time": `network_inter_arrival_seconds`,
		},
	}
}

// NewPrometheusAdapter creates an adapter. queries may be nil to use
// DefaultFieldQueries.
func NewPrometheusAdapter(promClient *client.PrometheusClient, queries map[model.Category]map[string]string, step, timeout time.Duration, logger *logrus.Logger) *PrometheusAdapter {
	if queries == nil {
		queries = DefaultFieldQueries()
	}
	if step <= 0 {
		step = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PrometheusAdapter{
		client:  promClient,
		queries: queries,
		step:    step,
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch implements Adapter.
func (a *PrometheusAdapter) Fetch(ctx context.Context, category model.Category, window string, limit int) ([]model.FeatureRecord, error) {
	fieldQueries, ok := a.queries[category]
	if !ok {
		return nil, fmt.Errorf("no queries configured for category %s", category)
	}

	now := time.Now()
	r := v1.Range{
		Start: WindowStart(window, now),
		End:   now,
		Step:  a.step,
	}

	// timestamp (ms) -> field -> value
	samples := make(map[int64]map[string]float64)

	for field, promql := range fieldQueries {
		result, err := a.client.QueryRange(ctx, promql, r, a.timeout)
		if err != nil {
			return nil, &model.TransportError{Op: "fetch", Err: fmt.Errorf("query for %s failed: %v", field, err)}
		}

		matrix, ok := result.(prommodel.Matrix)
		if !ok {
			return nil, &model.MalformedResponseError{Op: "fetch", Detail: fmt.Sprintf("expected matrix for %s, got %s", field, result.Type())}
		}
		if len(matrix) == 0 {
			a.logger.Debugf("No data for %s query %q", category, promql)
			continue
		}

		for _, pair := range matrix[0].Values {
			ts := int64(pair.Timestamp)
			if samples[ts] == nil {
				samples[ts] = make(map[string]float64, len(fieldQueries))
			}
			samples[ts][field] = float64(pair.Value)
		}
	}

	timestamps := make([]int64, 0, len(samples))
	for ts, fields := range samples {
		if len(fields) == len(fieldQueries) {
			timestamps = append(timestamps, ts)
		}
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	if limit > 0 && len(timestamps) > limit {
		timestamps = timestamps[len(timestamps)-limit:]
	}

	records := make([]model.FeatureRecord, 0, len(timestamps))
	for _, ts := range timestamps {
		records = append(records, model.FeatureRecord{
			Timestamp: time.UnixMilli(ts),
			Category:  category,
			Fields:    samples[ts],
		})
	}

	return records, nil
}
