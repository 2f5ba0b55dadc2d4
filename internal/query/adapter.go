package query

import (
	"context"

	"traffic-guard/internal/model"
)

// Adapter translates a logical time-window request into a concrete fetch
// against a backing store. Implementations must return records in
// non-decreasing timestamp order; the pipeline core stays independent of the
// concrete store behind this interface.
type Adapter interface {
	Fetch(ctx context.Context, category model.Category, window string, limit int) ([]model.FeatureRecord, error)
}
