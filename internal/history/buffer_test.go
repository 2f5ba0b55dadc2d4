package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-guard/internal/model"
)

func makeRecord(i int) model.ScoredRecord {
	return model.ScoredRecord{
		FeatureRecord: model.FeatureRecord{
			Timestamp: time.Unix(int64(i), 0),
			Category:  model.CategoryDNS,
			Fields:    map[string]float64{"dns_rate": float64(i)},
		},
		ID:        fmt.Sprintf("rec-%d", i),
		Score:     float64(i) / 10000,
		IsAnomaly: i%3 == 0,
	}
}

func TestBufferAppendAndOrder(t *testing.T) {
	buf := NewBuffer(10)

	for i := 0; i < 5; i++ {
		buf.Append(makeRecord(i))
	}

	all := buf.All()
	require.Len(t, all, 5)
	for i, rec := range all {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), rec.ID)
	}
}

func TestBufferOverflowEvictsOldest(t *testing.T) {
	buf := NewBuffer(1000)

	for i := 0; i < 1500; i++ {
		buf.Append(makeRecord(i))
	}

	require.Equal(t, 1000, buf.Len())

	all := buf.All()
	assert.Equal(t, "rec-500", all[0].ID)
	assert.Equal(t, "rec-1499", all[len(all)-1].ID)

	recent := buf.Recent(1000)
	require.Len(t, recent, 1000)
	for i, rec := range recent {
		assert.Equal(t, fmt.Sprintf("rec-%d", i+500), rec.ID)
	}
}

func TestBufferRecentClampsToLength(t *testing.T) {
	buf := NewBuffer(10)
	for i := 0; i < 3; i++ {
		buf.Append(makeRecord(i))
	}

	recent := buf.Recent(100)
	require.Len(t, recent, 3)
	assert.Equal(t, "rec-0", recent[0].ID)

	assert.Empty(t, buf.Recent(0))
}

func TestBufferDefaultCap(t *testing.T) {
	buf := NewBuffer(0)
	assert.Equal(t, DefaultCap, buf.Cap())

	buf = NewBuffer(-5)
	assert.Equal(t, DefaultCap, buf.Cap())
}

func TestBufferAttacks(t *testing.T) {
	buf := NewBuffer(100)
	for i := 0; i < 10; i++ {
		buf.Append(makeRecord(i)) // anomalous when i%3 == 0
	}

	attacks := buf.Attacks(-1)
	require.Len(t, attacks, 4) // 0, 3, 6, 9
	for _, rec := range attacks {
		assert.True(t, rec.IsAnomaly)
	}

	last2 := buf.Attacks(2)
	require.Len(t, last2, 2)
	assert.Equal(t, "rec-6", last2[0].ID)
	assert.Equal(t, "rec-9", last2[1].ID)
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append(makeRecord(1))

	all := buf.All()
	all[0].ID = "mutated"

	assert.Equal(t, "rec-1", buf.All()[0].ID)
}
