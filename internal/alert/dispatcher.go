package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"traffic-guard/internal/model"
)

// Status classifies the result of a dispatch attempt.
type Status string

const (
	StatusSent       Status = "sent"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Outcome describes what happened to one dispatch call.
type Outcome struct {
	Status Status
	Reason string
}

// Dispatcher turns anomalous scored records into alerts and fans them out to
// the registered notifiers. Dispatch is fire-and-forget: a transport failure
// is classified and returned as an outcome, never raised, never retried.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers []Notifier
	severity  string
	logger    *logrus.Logger
}

// NewDispatcher creates a dispatcher with no notifiers registered.
func NewDispatcher(severity string, logger *logrus.Logger) *Dispatcher {
	if severity == "" {
		severity = "HIGH"
	}
	return &Dispatcher{
		notifiers: make([]Notifier, 0),
		severity:  severity,
		logger:    logger,
	}
}

// RegisterNotifier adds a delivery channel.
func (d *Dispatcher) RegisterNotifier(notifier Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, notifier)
}

// Dispatch sends a notification for rec when it is anomalous and alerting is
// enabled; otherwise it returns Suppressed without any network I/O. The
// built alert is returned alongside the outcome so callers can publish it to
// read-side stores; it is nil when dispatch was suppressed.
func (d *Dispatcher) Dispatch(rec model.ScoredRecord, enabled bool) (Outcome, *model.Alert) {
	if !rec.IsAnomaly {
		return Outcome{Status: StatusSuppressed, Reason: "record not anomalous"}, nil
	}
	if !enabled {
		return Outcome{Status: StatusSuppressed, Reason: "alerting disabled"}, nil
	}

	alert := d.buildAlert(rec)

	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	if len(notifiers) == 0 {
		return Outcome{Status: StatusSuppressed, Reason: "no notifiers registered"}, nil
	}

	var firstErr error
	for _, notifier := range notifiers {
		if err := notifier.SendAlert(alert); err != nil {
			d.logger.Errorf("Failed to send alert: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return Outcome{Status: StatusFailed, Reason: firstErr.Error()}, &alert
	}
	return Outcome{Status: StatusSent}, &alert
}

func (d *Dispatcher) buildAlert(rec model.ScoredRecord) model.Alert {
	timestamp := rec.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	record := rec
	return model.Alert{
		ID:        uuid.New().String(),
		Category:  rec.Category,
		Severity:  d.severity,
		Message:   fmt.Sprintf("%s traffic anomaly: score %.4f labeled %s", rec.Category, rec.Score, rec.Label),
		Timestamp: timestamp,
		Record:    &record,
	}
}
