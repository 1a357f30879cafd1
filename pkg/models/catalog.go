package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inclusion policies a tap may attach to a stream or field.
const (
	InclusionAvailable   = "available"
	InclusionAutomatic   = "automatic"
	InclusionUnsupported = "unsupported"
)

// Catalog is the document a tap prints in discovery mode and reads back
// through --properties.
type Catalog struct {
	Streams []StreamDescriptor

	// extra keeps top-level keys other than "streams" so they survive a round trip.
	extra map[string]json.RawMessage
}

// StreamDescriptor is one entry of Catalog.Streams. Only the stream id and
// the metadata list are interpreted; every other key is carried verbatim.
type StreamDescriptor struct {
	TapStreamID string
	Metadata    []MetadataEntry

	extra map[string]json.RawMessage
}

// MetadataEntry annotates the stream (empty breadcrumb) or one of its fields.
type MetadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// IsRoot reports whether the entry applies to the whole stream.
func (m MetadataEntry) IsRoot() bool {
	return len(m.Breadcrumb) == 0
}

func (c *Catalog) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	streamsRaw, ok := raw["streams"]
	if !ok {
		return fmt.Errorf("catalog has no \"streams\" key")
	}
	var streams []StreamDescriptor
	if err := json.Unmarshal(streamsRaw, &streams); err != nil {
		return fmt.Errorf("catalog streams: %w", err)
	}
	delete(raw, "streams")
	c.Streams = streams
	c.extra = raw
	return nil
}

func (c Catalog) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	streams := c.Streams
	if streams == nil {
		streams = []StreamDescriptor{}
	}
	out["streams"] = streams
	return json.Marshal(out)
}

func (s *StreamDescriptor) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if idRaw, ok := raw["tap_stream_id"]; ok {
		if err := json.Unmarshal(idRaw, &s.TapStreamID); err != nil {
			return fmt.Errorf("tap_stream_id: %w", err)
		}
		delete(raw, "tap_stream_id")
	}
	if mdRaw, ok := raw["metadata"]; ok {
		// UseNumber keeps numeric metadata exact when the catalog is written back.
		dec := json.NewDecoder(bytes.NewReader(mdRaw))
		dec.UseNumber()
		if err := dec.Decode(&s.Metadata); err != nil {
			return fmt.Errorf("stream %q metadata: %w", s.TapStreamID, err)
		}
		delete(raw, "metadata")
	}
	s.extra = raw
	return nil
}

func (s StreamDescriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+2)
	for k, v := range s.extra {
		out[k] = v
	}
	out["tap_stream_id"] = s.TapStreamID
	md := s.Metadata
	if md == nil {
		md = []MetadataEntry{}
	}
	out["metadata"] = md
	return json.Marshal(out)
}

// Selected reports the stream's selection flag. Later root-level entries
// override earlier ones, matching how taps read a re-annotated catalog.
func (s StreamDescriptor) Selected() bool {
	selected := false
	for _, m := range s.Metadata {
		if !m.IsRoot() {
			continue
		}
		if v, ok := m.Metadata["selected"].(bool); ok {
			selected = v
		}
	}
	return selected
}

// SelectedStreams returns the ids of all selected streams in catalog order.
func (c *Catalog) SelectedStreams() []string {
	var ids []string
	for _, s := range c.Streams {
		if s.Selected() {
			ids = append(ids, s.TapStreamID)
		}
	}
	return ids
}
