package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-guard/internal/model"
)

// ScoreResult is the scorer's verdict for one feature record. Score carries
// the reconstruction error or decision-function value; its semantics are
// opaque here, only the relation to the threshold matters.
type ScoreResult struct {
	Anomaly      int
	Score        float64
	ModelVersion string
	LatencySec   float64
}

// Scorer maps a record's required numeric fields to a score. Implementations
// are treated as opaque and possibly unreliable.
type Scorer interface {
	Score(ctx context.Context, category model.Category, fields map[string]float64) (*ScoreResult, error)
}

// HTTPScorer calls an out-of-process scoring API over HTTP. One endpoint per
// category, JSON in, JSON out.
type HTTPScorer struct {
	endpoints map[model.Category]string
	client    *http.Client
	logger    *logrus.Logger
}

// scoreResponse is the expected endpoint reply. Pointer fields distinguish
// missing keys from zero values.
type scoreResponse struct {
	Anomaly             *int     `json:"anomaly"`
	ReconstructionError *float64 `json:"reconstruction_error"`
	Score               *float64 `json:"score"`
	ModelVersion        string   `json:"model_version,omitempty"`
	LatencySec          float64  `json:"latency_sec,omitempty"`
}

// NewHTTPScorer creates a scorer client with a bounded request timeout.
func NewHTTPScorer(endpoints map[model.Category]string, timeout time.Duration, logger *logrus.Logger) *HTTPScorer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPScorer{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Score posts the given fields to the category's endpoint and decodes the
// verdict. The payload carries exactly the fields passed in, nothing else.
func (s *HTTPScorer) Score(ctx context.Context, category model.Category, fields map[string]float64) (*ScoreResult, error) {
	endpoint, ok := s.endpoints[category]
	if !ok || endpoint == "" {
		return nil, &model.TransportError{Op: "score", Err: fmt.Errorf("no scoring endpoint configured for category %s", category)}
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, &model.TransportError{Op: "score", Err: fmt.Errorf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &model.TransportError{Op: "score", Err: fmt.Errorf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: "score", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.TransportError{Op: "score", Err: fmt.Errorf("scoring endpoint returned status %d", resp.StatusCode)}
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &model.MalformedResponseError{Op: "score", Detail: err.Error()}
	}

	if decoded.Anomaly == nil {
		return nil, &model.MalformedResponseError{Op: "score", Detail: "response missing anomaly field"}
	}

	result := &ScoreResult{
		Anomaly:      *decoded.Anomaly,
		ModelVersion: decoded.ModelVersion,
		LatencySec:   decoded.LatencySec,
	}

	switch {
	case decoded.ReconstructionError != nil:
		result.Score = *decoded.ReconstructionError
	case decoded.Score != nil:
		result.Score = *decoded.Score
	default:
		return nil, &model.MalformedResponseError{Op: "score", Detail: "response missing score field"}
	}

	s.logger.Debugf("Scored %s record: anomaly=%d score=%.4f", category, result.Anomaly, result.Score)
	return result, nil
}
