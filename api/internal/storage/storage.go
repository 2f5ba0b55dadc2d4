package storage

import (
	"strings"
	"sync"
	"time"

	"traffic-guard/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Storage is the in-memory read side of the detection pipelines: scored
// records and fired alerts, bounded FIFO, plus fan-out channels for the
// WebSocket streams. It implements pipeline.Publisher.
type Storage struct {
	mu         sync.RWMutex
	records    []model.ScoredRecord
	alerts     []model.Alert
	maxRecords int
	maxAlerts  int
	logger     *logrus.Logger

	alertSubs    map[*AlertSubscriber]bool
	alertSubsMu  sync.RWMutex
	recordSubs   map[*RecordSubscriber]bool
	recordSubsMu sync.RWMutex
}

type AlertSubscriber struct {
	ID       string
	Channel  chan model.Alert
	Filter   AlertFilter
	LastSeen time.Time
}

type AlertFilter struct {
	Severity string
	Category string
}

type RecordSubscriber struct {
	ID       string
	Channel  chan model.ScoredRecord
	Filter   RecordFilter
	LastSeen time.Time
}

type RecordFilter struct {
	Category    string
	AttacksOnly bool
}

func NewStorage(logger *logrus.Logger) *Storage {
	return &Storage{
		records:    make([]model.ScoredRecord, 0),
		alerts:     make([]model.Alert, 0),
		maxRecords: 10000,
		maxAlerts:  1000,
		logger:     logger,
		alertSubs:  make(map[*AlertSubscriber]bool),
		recordSubs: make(map[*RecordSubscriber]bool),
	}
}

// PublishRecord stores a scored record and fans it out to stream
// subscribers. Never blocks: slow subscribers drop records.
func (s *Storage) PublishRecord(rec model.ScoredRecord) {
	s.mu.Lock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.records = append(s.records, rec)
	if len(s.records) > s.maxRecords {
		s.records = s.records[len(s.records)-s.maxRecords:]
	}
	s.mu.Unlock()

	s.notifyRecordSubscribers(rec)
}

// PublishAlert stores a fired alert and fans it out to stream subscribers.
func (s *Storage) PublishAlert(a model.Alert) {
	s.mu.Lock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	s.mu.Unlock()

	s.notifyAlertSubscribers(a)
}

// GetRecords returns scored records latest-first with optional filters
// and pagination. The second return value is the filtered total.
func (s *Storage) GetRecords(page, limit int, category string, attacksOnly bool) ([]model.ScoredRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]model.ScoredRecord, 0)
	for i := range s.records {
		rec := s.records[i]
		if category != "" && rec.Category.String() != category {
			continue
		}
		if attacksOnly && !rec.IsAnomaly {
			continue
		}
		filtered = append(filtered, rec)
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []model.ScoredRecord{}, total
	}

	result := make([]model.ScoredRecord, 0, limit)
	for i := total - 1 - start; i >= 0 && len(result) < limit; i-- {
		result = append(result, filtered[i])
	}
	return result, total
}

func (s *Storage) GetRecordByID(id string) *model.ScoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec
		}
	}
	return nil
}

// GetAlerts returns fired alerts latest-first with optional filters.
func (s *Storage) GetAlerts(limit int, severity, category, search string) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		a := s.alerts[i]
		if severity != "" && a.Severity != severity {
			continue
		}
		if category != "" && a.Category.String() != category {
			continue
		}
		if search != "" && !strings.Contains(a.Message, search) {
			continue
		}
		result = append(result, a)
	}
	return result
}

func (s *Storage) GetAlertByID(id string) *model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			a := s.alerts[i]
			return &a
		}
	}
	return nil
}

// GetAlertsTimeline returns alerts inside the inclusive [start, end] range
// in arrival order.
func (s *Storage) GetAlertsTimeline(start, end time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for i := range s.alerts {
		a := s.alerts[i]
		if !start.IsZero() && a.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && a.Timestamp.After(end) {
			continue
		}
		result = append(result, a)
	}
	return result
}

// ScoreSummary aggregates the stored records for one category.
type ScoreSummary struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Attacks  int     `json:"attacks"`
	MinScore float64 `json:"min_score"`
	MaxScore float64 `json:"max_score"`
	AvgScore float64 `json:"avg_score"`
}

// GetScoreSummaries returns per-category score statistics for every
// category present in the stored records.
func (s *Storage) GetScoreSummaries() []ScoreSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string]*ScoreSummary)
	var order []string
	for i := range s.records {
		rec := s.records[i]
		key := rec.Category.String()
		summary, ok := byCategory[key]
		if !ok {
			summary = &ScoreSummary{Category: key, MinScore: rec.Score, MaxScore: rec.Score}
			byCategory[key] = summary
			order = append(order, key)
		}
		summary.Total++
		if rec.IsAnomaly {
			summary.Attacks++
		}
		if rec.Score < summary.MinScore {
			summary.MinScore = rec.Score
		}
		if rec.Score > summary.MaxScore {
			summary.MaxScore = rec.Score
		}
		summary.AvgScore += rec.Score
	}

	result := make([]ScoreSummary, 0, len(order))
	for _, key := range order {
		summary := byCategory[key]
		summary.AvgScore /= float64(summary.Total)
		result = append(result, *summary)
	}
	return result
}

// Subscriber methods
func (s *Storage) SubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
}

func (s *Storage) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	delete(s.alertSubs, sub)
	close(sub.Channel)
}

func (s *Storage) notifyAlertSubscribers(a model.Alert) {
	s.alertSubsMu.RLock()
	defer s.alertSubsMu.RUnlock()

	for sub := range s.alertSubs {
		if sub.Filter.Severity != "" && a.Severity != sub.Filter.Severity {
			continue
		}
		if sub.Filter.Category != "" && a.Category.String() != sub.Filter.Category {
			continue
		}

		select {
		case sub.Channel <- a:
			sub.LastSeen = time.Now()
		default:
			// Channel full, skip
		}
	}
}

func (s *Storage) SubscribeRecords(sub *RecordSubscriber) {
	s.recordSubsMu.Lock()
	defer s.recordSubsMu.Unlock()
	s.recordSubs[sub] = true
}

func (s *Storage) UnsubscribeRecords(sub *RecordSubscriber) {
	s.recordSubsMu.Lock()
	defer s.recordSubsMu.Unlock()
	delete(s.recordSubs, sub)
	close(sub.Channel)
}

func (s *Storage) notifyRecordSubscribers(rec model.ScoredRecord) {
	s.recordSubsMu.RLock()
	defer s.recordSubsMu.RUnlock()

	for sub := range s.recordSubs {
		if sub.Filter.Category != "" && rec.Category.String() != sub.Filter.Category {
			continue
		}
		if sub.Filter.AttacksOnly && !rec.IsAnomaly {
			continue
		}

		select {
		case sub.Channel <- rec:
			sub.LastSeen = time.Now()
		default:
			// Channel full, skip
		}
	}
}
