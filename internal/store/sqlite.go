package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"traffic-guard/internal/model"
)

// timestampLayout is RFC3339 with a constant 9-digit fraction. Timestamps
// are compared as strings in SQL, so the width must be fixed: RFC3339Nano
// trims trailing zeros, making "…00Z" sort after "…00.5Z".
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Store persists feature rows and prediction logs in SQLite, one table pair
// per traffic category.
type Store struct {
	db     *sql.DB
	tables map[model.Category]string
	logger *logrus.Logger
}

// NewStore opens or creates the database at path. tables maps a category to
// its prediction table name; missing entries fall back to
// "<category>_predictions".
func NewStore(path string, tables map[model.Category]string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %v", path, err)
	}

	// WAL mode for concurrent API reads alongside pipeline writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	s := &Store{
		db:     db,
		tables: make(map[model.Category]string),
		logger: logger,
	}

	for _, category := range []model.Category{model.CategoryDNS, model.CategoryDoS} {
		table := tables[category]
		if table == "" {
			table = fmt.Sprintf("%s_predictions", category)
		}
		if !validIdentifier(table) {
			db.Close()
			return nil, fmt.Errorf("invalid table name %q for category %s", table, category)
		}
		s.tables[category] = table

		if err := s.createSchema(category); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(category model.Category) error {
	features := featureColumnDefs(category)

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s_traffic (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		%s
	);
	CREATE INDEX IF NOT EXISTS idx_%s_traffic_timestamp ON %s_traffic(timestamp);

	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		%s,
		score REAL NOT NULL,
		anomaly INTEGER NOT NULL,
		label TEXT NOT NULL,
		model_version TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s(timestamp);
	CREATE INDEX IF NOT EXISTS idx_%s_anomaly ON %s(anomaly);
	`,
		category, features,
		category, category,
		s.tables[category], features,
		s.tables[category], s.tables[category],
		s.tables[category], s.tables[category],
	)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema for %s: %v", category, err)
	}
	return nil
}

// InsertFeatures stores one raw feature row for later fetching.
func (s *Store) InsertFeatures(rec model.FeatureRecord) error {
	columns := rec.Category.RequiredFields()
	if columns == nil {
		return fmt.Errorf("unknown category %s", rec.Category)
	}

	placeholders := make([]string, 0, len(columns)+1)
	args := make([]interface{}, 0, len(columns)+1)

	placeholders = append(placeholders, "?")
	args = append(args, formatTimestamp(rec.Timestamp))

	for _, col := range columns {
		placeholders = append(placeholders, "?")
		args = append(args, rec.Fields[col])
	}

	query := fmt.Sprintf("INSERT INTO %s_traffic (timestamp, %s) VALUES (%s)",
		rec.Category, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	_, err := s.db.Exec(query, args...)
	return err
}

// FetchFeatures returns raw feature rows at or after since, oldest-first.
func (s *Store) FetchFeatures(ctx context.Context, category model.Category, since time.Time, limit int) ([]model.FeatureRecord, error) {
	columns := category.RequiredFields()
	if columns == nil {
		return nil, fmt.Errorf("unknown category %s", category)
	}
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT timestamp, %s FROM %s_traffic
		WHERE timestamp >= ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, strings.Join(columns, ", "), category)

	rows, err := s.db.QueryContext(ctx, query, formatTimestamp(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.FeatureRecord, 0)
	for rows.Next() {
		var ts string
		values := make([]float64, len(columns))
		dest := make([]interface{}, 0, len(columns)+1)
		dest = append(dest, &ts)
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			s.logger.Warnf("Skipping feature row with bad timestamp %q: %v", ts, err)
			continue
		}

		fields := make(map[string]float64, len(columns))
		for i, col := range columns {
			fields[col] = values[i]
		}

		records = append(records, model.FeatureRecord{
			Timestamp: timestamp,
			Category:  category,
			Fields:    fields,
		})
	}

	return records, rows.Err()
}

// InsertPrediction logs a scored record to the category's prediction table.
func (s *Store) InsertPrediction(rec model.ScoredRecord) error {
	columns := rec.Category.RequiredFields()
	table, ok := s.tables[rec.Category]
	if !ok || columns == nil {
		return fmt.Errorf("unknown category %s", rec.Category)
	}

	anomaly := 0
	if rec.IsAnomaly {
		anomaly = 1
	}

	args := []interface{}{rec.ID, formatTimestamp(rec.Timestamp)}
	placeholders := []string{"?", "?"}
	for _, col := range columns {
		args = append(args, rec.Fields[col])
		placeholders = append(placeholders, "?")
	}
	args = append(args, rec.Score, anomaly, rec.Label, rec.ModelVersion)
	placeholders = append(placeholders, "?", "?", "?", "?")

	query := fmt.Sprintf("INSERT INTO %s (id, timestamp, %s, score, anomaly, label, model_version) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	_, err := s.db.Exec(query, args...)
	return err
}

// QueryPredictions returns scored records at or after since, oldest-first.
func (s *Store) QueryPredictions(ctx context.Context, category model.Category, since time.Time, limit int) ([]model.ScoredRecord, error) {
	return s.queryPredictions(ctx, category, "WHERE timestamp >= ?", []interface{}{formatTimestamp(since)}, limit)
}

// QueryPredictionRange returns scored records between start and end
// inclusive, oldest-first.
func (s *Store) QueryPredictionRange(ctx context.Context, category model.Category, start, end time.Time) ([]model.ScoredRecord, error) {
	return s.queryPredictions(ctx, category, "WHERE timestamp >= ? AND timestamp <= ?",
		[]interface{}{formatTimestamp(start), formatTimestamp(end)}, 0)
}

func (s *Store) queryPredictions(ctx context.Context, category model.Category, where string, args []interface{}, limit int) ([]model.ScoredRecord, error) {
	columns := category.RequiredFields()
	table, ok := s.tables[category]
	if !ok || columns == nil {
		return nil, fmt.Errorf("unknown category %s", category)
	}

	query := fmt.Sprintf("SELECT id, timestamp, %s, score, anomaly, label, model_version FROM %s %s ORDER BY timestamp ASC",
		strings.Join(columns, ", "), table, where)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.ScoredRecord, 0)
	for rows.Next() {
		var (
			id, ts, label string
			modelVersion  sql.NullString
			score         float64
			anomaly       int
		)
		values := make([]float64, len(columns))
		dest := []interface{}{&id, &ts}
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &score, &anomaly, &label, &modelVersion)

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			s.logger.Warnf("Skipping prediction row with bad timestamp %q: %v", ts, err)
			continue
		}

		fields := make(map[string]float64, len(columns))
		for i, col := range columns {
			fields[col] = values[i]
		}

		records = append(records, model.ScoredRecord{
			FeatureRecord: model.FeatureRecord{
				Timestamp: timestamp,
				Category:  category,
				Fields:    fields,
			},
			ID:           id,
			Score:        score,
			IsAnomaly:    anomaly == 1,
			Label:        label,
			ModelVersion: modelVersion.String,
		})
	}

	return records, rows.Err()
}

func featureColumnDefs(category model.Category) string {
	columns := category.RequiredFields()
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = col + " REAL NOT NULL"
	}
	return strings.Join(defs, ",\n\t\t")
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
