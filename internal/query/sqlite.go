package query

import (
	"context"
	"time"

	"traffic-guard/internal/model"
	"traffic-guard/internal/store"
)

// SQLiteAdapter fetches raw feature rows from the local SQLite store.
type SQLiteAdapter struct {
	store *store.Store
}

// NewSQLiteAdapter wraps a store as a query adapter.
func NewSQLiteAdapter(s *store.Store) *SQLiteAdapter {
	return &SQLiteAdapter{store: s}
}

// Fetch implements Adapter. Rows come back oldest-first because the store
// orders by timestamp ascending.
func (a *SQLiteAdapter) Fetch(ctx context.Context, category model.Category, window string, limit int) ([]model.FeatureRecord, error) {
	since := WindowStart(window, time.Now())
	return a.store.FetchFeatures(ctx, category, since, limit)
}
