package etl

import (
	"fmt"

	"github.com/BartekS5/taprun/pkg/models"
)

// ValidateCatalog checks that every stream has a non-empty, unique id.
func ValidateCatalog(c *models.Catalog) error {
	if c == nil {
		return fmt.Errorf("catalog is empty")
	}
	seen := make(map[string]int, len(c.Streams))
	for i, s := range c.Streams {
		if s.TapStreamID == "" {
			return fmt.Errorf("stream %d has no tap_stream_id", i)
		}
		if prev, dup := seen[s.TapStreamID]; dup {
			return fmt.Errorf("duplicate tap_stream_id %q at streams %d and %d", s.TapStreamID, prev, i)
		}
		seen[s.TapStreamID] = i
	}
	return nil
}
