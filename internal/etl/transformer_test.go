package etl

import (
	"encoding/json"
	"testing"

	"github.com/BartekS5/taprun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCatalog(t *testing.T, doc string) *models.Catalog {
	t.Helper()
	var c models.Catalog
	require.NoError(t, json.Unmarshal([]byte(doc), &c))
	return &c
}

func selection(c *models.Catalog) map[string]bool {
	out := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		out[s.TapStreamID] = s.Selected()
	}
	return out
}

func TestSelectStreamsMarksWantedOnly(t *testing.T) {
	c := SelectStreams(loadCatalog(t, fakeCatalog), []string{"issues", "commits", "releases"})

	assert.Equal(t, map[string]bool{"issues": true, "commits": true, "stargazers": false}, selection(c))

	ids := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		ids = append(ids, s.TapStreamID)
	}
	assert.Equal(t, []string{"issues", "commits", "stargazers"}, ids, "order and membership are preserved")

	issues := c.Streams[0]
	require.Len(t, issues.Metadata, 2, "existing field metadata is kept")
	root := issues.Metadata[1]
	assert.True(t, root.IsRoot())
	assert.Equal(t, map[string]any{"selected": true, "inclusion": models.InclusionAvailable}, root.Metadata)
}

func TestSelectStreamsIsDeterministic(t *testing.T) {
	wanted := []string{"stargazers"}
	first := SelectStreams(loadCatalog(t, fakeCatalog), wanted)
	second := SelectStreams(loadCatalog(t, fakeCatalog), wanted)
	assert.Equal(t, selection(first), selection(second))

	// Selecting the same catalog twice only adds a duplicate annotation.
	twice := SelectStreams(SelectStreams(loadCatalog(t, fakeCatalog), wanted), wanted)
	assert.Equal(t, selection(first), selection(twice))
	assert.Len(t, twice.Streams[2].Metadata, 2)
}

func TestSelectStreamsWrittenBracketIsEmptyList(t *testing.T) {
	c := SelectStreams(loadCatalog(t, `{"streams":[{"tap_stream_id":"a"}]}`), []string{"a"})
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"streams":[{"tap_stream_id":"a","metadata":[{"breadcrumb":[],"metadata":{"selected":true,"inclusion":"available"}}]}]}`,
		string(out))
}

func TestValidateCatalog(t *testing.T) {
	assert.NoError(t, ValidateCatalog(loadCatalog(t, fakeCatalog)))
	assert.Error(t, ValidateCatalog(nil))
	assert.ErrorContains(t, ValidateCatalog(loadCatalog(t, `{"streams":[{"tap_stream_id":"a"},{"tap_stream_id":"a"}]}`)), "duplicate")
	assert.ErrorContains(t, ValidateCatalog(loadCatalog(t, `{"streams":[{"stream":"nameless"}]}`)), "no tap_stream_id")
}
