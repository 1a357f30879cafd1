package etl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BartekS5/taprun/pkg/models"
)

// Checkpoint is a committed tap state value plus bookkeeping.
type Checkpoint struct {
	Value     json.RawMessage
	RunID     string
	UpdatedAt time.Time
}

// CheckpointStore is the durable home of the committed checkpoint. Save
// must replace the previous value atomically.
type CheckpointStore interface {
	Load(ctx context.Context) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
	Describe() string
}

// PropertiesCache remembers the selected catalog between runs.
type PropertiesCache interface {
	// Lookup returns the path of a cached properties document, if any.
	Lookup() (string, bool)
	// Save persists the catalog and returns the path the tap should read.
	Save(c *models.Catalog) (string, error)
}

// Discoverer produces the tap's full catalog.
type Discoverer interface {
	Discover(ctx context.Context, configPath string) (*models.Catalog, error)
}
