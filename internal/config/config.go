// Package config builds the immutable settings for one tap run from the
// pipeline definition, the .env file, the process environment and the
// optional stdin session payload.
package config

import (
	"encoding/json"
	"sort"
)

// RunConfig is the tap's --config document. It is built once per run and
// never mutated afterwards; accessors hand out copies.
type RunConfig struct {
	values map[string]any
}

// NewRunConfig copies m into a RunConfig.
func NewRunConfig(m map[string]any) RunConfig {
	values := make(map[string]any, len(m))
	for k, v := range m {
		values[k] = v
	}
	return RunConfig{values: values}
}

func (c RunConfig) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the value for key when it is a string, else "".
func (c RunConfig) String(key string) string {
	s, _ := c.values[key].(string)
	return s
}

func (c RunConfig) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c RunConfig) Len() int {
	return len(c.values)
}

func (c RunConfig) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// Document renders the config as the indented JSON file handed to the tap.
func (c RunConfig) Document() ([]byte, error) {
	if c.values == nil {
		return []byte("{}\n"), nil
	}
	data, err := json.MarshalIndent(c.values, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
