package history

import (
	"sync"

	"traffic-guard/internal/model"
)

// DefaultCap is the number of scored records retained when no explicit cap
// is configured.
const DefaultCap = 1000

// Buffer is a bounded FIFO of scored records, oldest-first. On overflow the
// oldest entries are discarded. Writes come from a single pipeline owner;
// the mutex exists so API readers can take snapshots concurrently.
type Buffer struct {
	mu      sync.RWMutex
	records []model.ScoredRecord
	cap     int
}

// NewBuffer creates an empty buffer. A cap <= 0 falls back to DefaultCap.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Buffer{
		records: make([]model.ScoredRecord, 0, capacity),
		cap:     capacity,
	}
}

// Append adds a record and trims to cap by dropping from the front.
func (b *Buffer) Append(rec model.ScoredRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, rec)

	if len(b.records) > b.cap {
		b.records = b.records[len(b.records)-b.cap:]
	}
}

// Recent returns the last n records in insertion order. If n exceeds the
// buffer length the whole buffer is returned.
func (b *Buffer) Recent(n int) []model.ScoredRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(b.records) {
		n = len(b.records)
	}

	result := make([]model.ScoredRecord, n)
	copy(result, b.records[len(b.records)-n:])
	return result
}

// All returns a snapshot of the whole buffer, oldest-first.
func (b *Buffer) All() []model.ScoredRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]model.ScoredRecord, len(b.records))
	copy(result, b.records)
	return result
}

// Attacks returns the last n anomalous records in insertion order.
func (b *Buffer) Attacks(n int) []model.ScoredRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]model.ScoredRecord, 0)
	for i := range b.records {
		if b.records[i].IsAnomaly {
			result = append(result, b.records[i])
		}
	}

	if n >= 0 && n < len(result) {
		result = result[len(result)-n:]
	}
	return result
}

// Len returns the current number of records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return b.cap
}
