package model

import (
	"time"
)

// Category identifies the traffic type a record belongs to. It is fixed at
// record creation and never mutated.
type Category string

const (
	CategoryDNS Category = "dns"
	CategoryDoS Category = "dos"
)

// RequiredFields returns the feature field names a record of this category
// must carry before it can be scored.
func (c Category) RequiredFields() []string {
	switch c {
	case CategoryDNS:
		return []string{"dns_rate", "inter_arrival_time"}
	case CategoryDoS:
		return []string{"packet_rate", "packet_length", "inter_arrival_time"}
	default:
		return nil
	}
}

// Valid reports whether the category is one of the known traffic types.
func (c Category) Valid() bool {
	return c == CategoryDNS || c == CategoryDoS
}

func (c Category) String() string {
	return string(c)
}

// Labels assigned to scored records.
const (
	LabelAttack = "Attack"
	LabelNormal = "Normal"
)

// FeatureRecord is one timestamped observation of numeric traffic attributes
// for a single category.
type FeatureRecord struct {
	Timestamp time.Time          `json:"timestamp"`
	Category  Category           `json:"category"`
	Fields    map[string]float64 `json:"fields"`
}

// ScoredRecord is a FeatureRecord plus its detection outcome. IsAnomaly is
// derived from Score and the threshold in effect at creation and is never
// re-evaluated afterwards.
type ScoredRecord struct {
	FeatureRecord

	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	IsAnomaly    bool    `json:"is_anomaly"`
	Label        string  `json:"label"`
	ModelVersion string  `json:"model_version,omitempty"`
	LatencySec   float64 `json:"latency_sec,omitempty"`
}

// Alert is the notification emitted for an anomalous scored record.
type Alert struct {
	ID        string        `json:"id"`
	Category  Category      `json:"category"`
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Record    *ScoredRecord `json:"record,omitempty"`
}
