package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-guard/internal/model"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newScorerFor(url string, timeout time.Duration) *HTTPScorer {
	return NewHTTPScorer(map[model.Category]string{
		model.CategoryDNS: url,
	}, timeout, testLogger())
}

func TestHTTPScorerSendsOnlyGivenFields(t *testing.T) {
	var received map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"anomaly":              1,
			"reconstruction_error": 0.8,
			"model_version":        "v1.0",
		})
	}))
	defer srv.Close()

	scorer := newScorerFor(srv.URL, 5*time.Second)
	fields := map[string]float64{"dns_rate": 150, "inter_arrival_time": 0.005}

	result, err := scorer.Score(context.Background(), model.CategoryDNS, fields)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Anomaly)
	assert.Equal(t, 0.8, result.Score)
	assert.Equal(t, "v1.0", result.ModelVersion)
	assert.Equal(t, fields, received)
}

func TestHTTPScorerFallsBackToScoreField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"anomaly": 0,
			"score":   0.02,
		})
	}))
	defer srv.Close()

	scorer := newScorerFor(srv.URL, 5*time.Second)
	result, err := scorer.Score(context.Background(), model.CategoryDNS, map[string]float64{"dns_rate": 1})
	require.NoError(t, err)
	assert.Equal(t, 0.02, result.Score)
}

func TestHTTPScorerMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing anomaly", `{"reconstruction_error": 0.5}`},
		{"missing score", `{"anomaly": 1}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			scorer := newScorerFor(srv.URL, 5*time.Second)
			_, err := scorer.Score(context.Background(), model.CategoryDNS, map[string]float64{"dns_rate": 1})
			require.Error(t, err)

			var malformed *model.MalformedResponseError
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestHTTPScorerTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	scorer := newScorerFor(srv.URL, 5*time.Second)
	_, err := scorer.Score(context.Background(), model.CategoryDNS, map[string]float64{"dns_rate": 1})

	var transport *model.TransportError
	require.ErrorAs(t, err, &transport)
}

func TestHTTPScorerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	scorer := newScorerFor(srv.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := scorer.Score(context.Background(), model.CategoryDNS, map[string]float64{"dns_rate": 1})
	elapsed := time.Since(start)

	var transport *model.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestHTTPScorerUnknownCategory(t *testing.T) {
	scorer := newScorerFor("http://localhost:1", time.Second)
	_, err := scorer.Score(context.Background(), model.CategoryDoS, map[string]float64{"packet_rate": 1})

	var transport *model.TransportError
	require.ErrorAs(t, err, &transport)
}
