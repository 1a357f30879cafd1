package config

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/BartekS5/taprun/pkg/logger"
)

// ReadSession decodes the optional JSON payload a scheduler pipes to the
// runner. Empty input yields nil; malformed input is logged and ignored.
func ReadSession(r io.Reader) map[string]any {
	if r == nil {
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		logger.Warnf("Failed to read session data: %v. Using .env/default values.", err)
		return nil
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil
	}

	var session map[string]any
	if err := json.Unmarshal([]byte(content), &session); err != nil {
		logger.Warnf("Failed to parse session data: %v. Using .env/default values.", err)
		return nil
	}
	return session
}

// SessionStartDate finds a start date in the session payload: the first of
// keys present at top level, then surveilr-ingest.session.start_date.
func SessionStartDate(session map[string]any, keys []string) (any, bool) {
	if session == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := session[k]; ok && v != nil {
			return v, true
		}
	}
	ingest, ok := session["surveilr-ingest"].(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := ingest["session"].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := inner["start_date"]
	return v, ok && v != nil
}
