package etl

import (
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/BartekS5/taprun/pkg/models"
)

// SelectStreams appends a root-level selection entry to every stream:
// selected when its id is in wanted, inclusion "available". Streams are
// neither removed nor reordered.
func SelectStreams(c *models.Catalog, wanted []string) *models.Catalog {
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[w] = true
	}

	found := make(map[string]bool, len(wanted))
	for i := range c.Streams {
		s := &c.Streams[i]
		isSelected := want[s.TapStreamID]
		s.Metadata = append(s.Metadata, models.MetadataEntry{
			Breadcrumb: []string{},
			Metadata: map[string]any{
				"selected":  isSelected,
				"inclusion": models.InclusionAvailable,
			},
		})
		if isSelected {
			found[s.TapStreamID] = true
			logger.Infof("Selected stream: %s", s.TapStreamID)
		}
	}

	for _, w := range wanted {
		if !found[w] {
			logger.Warnf("Requested stream %q is not in the discovered catalog", w)
		}
	}
	return c
}
