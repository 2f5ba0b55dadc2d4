package alert

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-guard/internal/model"
)

type fakeNotifier struct {
	calls int
	err   error
	last  model.Alert
}

func (f *fakeNotifier) SendAlert(alert model.Alert) error {
	f.calls++
	f.last = alert
	return f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func anomalousRecord() model.ScoredRecord {
	return model.ScoredRecord{
		FeatureRecord: model.FeatureRecord{
			Timestamp: time.Now(),
			Category:  model.CategoryDNS,
			Fields:    map[string]float64{"dns_rate": 150, "inter_arrival_time": 0.005},
		},
		ID:        "rec-1",
		Score:     0.8,
		IsAnomaly: true,
		Label:     model.LabelAttack,
	}
}

func TestDispatchSendsForAnomaly(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher("HIGH", testLogger())
	d.RegisterNotifier(notifier)

	outcome, alert := d.Dispatch(anomalousRecord(), true)

	assert.Equal(t, StatusSent, outcome.Status)
	require.NotNil(t, alert)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, model.CategoryDNS, notifier.last.Category)
	assert.Equal(t, "HIGH", notifier.last.Severity)
	require.NotNil(t, notifier.last.Record)
	assert.Equal(t, 0.8, notifier.last.Record.Score)
}

func TestDispatchSuppressesNormalRecord(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher("HIGH", testLogger())
	d.RegisterNotifier(notifier)

	rec := anomalousRecord()
	rec.IsAnomaly = false
	rec.Label = model.LabelNormal

	outcome, alert := d.Dispatch(rec, true)

	assert.Equal(t, StatusSuppressed, outcome.Status)
	assert.Nil(t, alert)
	assert.Zero(t, notifier.calls, "suppressed dispatch must perform no delivery")
}

func TestDispatchSuppressesWhenDisabled(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher("HIGH", testLogger())
	d.RegisterNotifier(notifier)

	outcome, alert := d.Dispatch(anomalousRecord(), false)

	assert.Equal(t, StatusSuppressed, outcome.Status)
	assert.Nil(t, alert)
	assert.Zero(t, notifier.calls)
}

func TestDispatchReportsFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("webhook unreachable")}
	d := NewDispatcher("HIGH", testLogger())
	d.RegisterNotifier(notifier)

	outcome, alert := d.Dispatch(anomalousRecord(), true)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.NotNil(t, alert)
	assert.Contains(t, outcome.Reason, "webhook unreachable")
}

func TestDiscordNotifierPostsContentPayload(t *testing.T) {
	var calls atomic.Int32
	var payload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, true, 5*time.Second, testLogger())
	d := NewDispatcher("HIGH", testLogger())
	d.RegisterNotifier(notifier)

	outcome, alert := d.Dispatch(anomalousRecord(), true)

	assert.Equal(t, StatusSent, outcome.Status)
	require.NotNil(t, alert)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, payload["content"], "ALERT FIRING")
	assert.Contains(t, payload["content"], "dns")
}

func TestDiscordNotifierSingleAttemptOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, true, 5*time.Second, testLogger())

	err := notifier.SendAlert(model.Alert{Category: model.CategoryDoS, Severity: "HIGH", Timestamp: time.Now()})

	var transport *model.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, int32(1), calls.Load(), "no automatic retry")
}

func TestDiscordNotifierDisabledSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, false, 5*time.Second, testLogger())

	require.NoError(t, notifier.SendAlert(model.Alert{Category: model.CategoryDNS}))
	assert.Zero(t, calls.Load())
}
