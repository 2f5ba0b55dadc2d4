package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-guard/internal/model"
)

func testStorage() *Storage {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewStorage(logger)
}

func record(id string, category model.Category, score float64, anomaly bool) model.ScoredRecord {
	return model.ScoredRecord{
		FeatureRecord: model.FeatureRecord{
			Timestamp: time.Now(),
			Category:  category,
			Fields:    map[string]float64{"dns_rate": score * 100},
		},
		ID:        id,
		Score:     score,
		IsAnomaly: anomaly,
	}
}

func TestPublishRecordAssignsIDAndCaps(t *testing.T) {
	s := testStorage()
	s.maxRecords = 5

	for i := 0; i < 8; i++ {
		s.PublishRecord(record("", model.CategoryDNS, float64(i)/10, false))
	}

	records, total := s.GetRecords(1, 10, "", false)
	assert.Equal(t, 5, total)
	require.Len(t, records, 5)
	assert.NotEmpty(t, records[0].ID)
	// latest first
	assert.Equal(t, 0.7, records[0].Score)
	assert.Equal(t, 0.3, records[4].Score)
}

func TestGetRecordsFilters(t *testing.T) {
	s := testStorage()
	s.PublishRecord(record("a", model.CategoryDNS, 0.9, true))
	s.PublishRecord(record("b", model.CategoryDoS, 0.2, false))
	s.PublishRecord(record("c", model.CategoryDNS, 0.05, false))

	dns, total := s.GetRecords(1, 10, "dns", false)
	assert.Equal(t, 2, total)
	assert.Len(t, dns, 2)

	attacks, total := s.GetRecords(1, 10, "", true)
	assert.Equal(t, 1, total)
	require.Len(t, attacks, 1)
	assert.Equal(t, "a", attacks[0].ID)
}

func TestGetRecordsPagination(t *testing.T) {
	s := testStorage()
	for i := 0; i < 30; i++ {
		s.PublishRecord(record(fmt.Sprintf("rec-%d", i), model.CategoryDNS, 0.1, false))
	}

	page1, total := s.GetRecords(1, 10, "", false)
	assert.Equal(t, 30, total)
	require.Len(t, page1, 10)
	assert.Equal(t, "rec-29", page1[0].ID)

	page2, _ := s.GetRecords(2, 10, "", false)
	require.Len(t, page2, 10)
	assert.Equal(t, "rec-19", page2[0].ID)

	beyond, _ := s.GetRecords(5, 10, "", false)
	assert.Empty(t, beyond)
}

func TestPublishAlertAndQuery(t *testing.T) {
	s := testStorage()
	s.PublishAlert(model.Alert{Category: model.CategoryDNS, Severity: "HIGH", Message: "dns traffic anomaly"})
	s.PublishAlert(model.Alert{Category: model.CategoryDoS, Severity: "CRITICAL", Message: "dos traffic anomaly"})

	all := s.GetAlerts(10, "", "", "")
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())

	high := s.GetAlerts(10, "HIGH", "", "")
	require.Len(t, high, 1)
	assert.Equal(t, model.CategoryDNS, high[0].Category)

	dos := s.GetAlerts(10, "", "dos", "")
	require.Len(t, dos, 1)

	matched := s.GetAlerts(10, "", "", "dos traffic")
	require.Len(t, matched, 1)

	byID := s.GetAlertByID(all[0].ID)
	require.NotNil(t, byID)
	assert.Nil(t, s.GetAlertByID("missing"))
}

func TestGetAlertsTimeline(t *testing.T) {
	s := testStorage()
	now := time.Now()
	s.PublishAlert(model.Alert{Category: model.CategoryDNS, Timestamp: now.Add(-2 * time.Hour)})
	s.PublishAlert(model.Alert{Category: model.CategoryDNS, Timestamp: now.Add(-30 * time.Minute)})
	s.PublishAlert(model.Alert{Category: model.CategoryDNS, Timestamp: now})

	inRange := s.GetAlertsTimeline(now.Add(-time.Hour), now.Add(-time.Minute))
	assert.Len(t, inRange, 1)

	open := s.GetAlertsTimeline(time.Time{}, time.Time{})
	assert.Len(t, open, 3)
}

func TestRecordSubscriberFanOut(t *testing.T) {
	s := testStorage()
	sub := &RecordSubscriber{
		ID:      "sub-1",
		Channel: make(chan model.ScoredRecord, 10),
		Filter:  RecordFilter{AttacksOnly: true},
	}
	s.SubscribeRecords(sub)

	s.PublishRecord(record("normal", model.CategoryDNS, 0.01, false))
	s.PublishRecord(record("attack", model.CategoryDNS, 0.95, true))

	select {
	case rec := <-sub.Channel:
		assert.Equal(t, "attack", rec.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a record on the subscriber channel")
	}
	assert.Empty(t, sub.Channel)

	s.UnsubscribeRecords(sub)
	_, open := <-sub.Channel
	assert.False(t, open, "channel closed on unsubscribe")
}

func TestAlertSubscriberFilter(t *testing.T) {
	s := testStorage()
	sub := &AlertSubscriber{
		ID:      "sub-1",
		Channel: make(chan model.Alert, 10),
		Filter:  AlertFilter{Category: "dos"},
	}
	s.SubscribeAlerts(sub)
	defer s.UnsubscribeAlerts(sub)

	s.PublishAlert(model.Alert{Category: model.CategoryDNS, Severity: "HIGH"})
	s.PublishAlert(model.Alert{Category: model.CategoryDoS, Severity: "HIGH"})

	select {
	case a := <-sub.Channel:
		assert.Equal(t, model.CategoryDoS, a.Category)
	case <-time.After(time.Second):
		t.Fatal("expected an alert on the subscriber channel")
	}
	assert.Empty(t, sub.Channel)
}

func TestGetScoreSummaries(t *testing.T) {
	s := testStorage()
	s.PublishRecord(record("a", model.CategoryDNS, 0.2, true))
	s.PublishRecord(record("b", model.CategoryDNS, 0.4, true))
	s.PublishRecord(record("c", model.CategoryDoS, 0.1, false))

	summaries := s.GetScoreSummaries()
	require.Len(t, summaries, 2)

	dns := summaries[0]
	assert.Equal(t, "dns", dns.Category)
	assert.Equal(t, 2, dns.Total)
	assert.Equal(t, 2, dns.Attacks)
	assert.Equal(t, 0.2, dns.MinScore)
	assert.Equal(t, 0.4, dns.MaxScore)
	assert.InDelta(t, 0.3, dns.AvgScore, 1e-9)
}
