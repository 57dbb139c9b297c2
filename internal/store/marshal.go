package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/flowmig/internal/definition"
)

// marshalDefinition converts a definition tree to JSON TEXT for storage.
func marshalDefinition(def *definition.ProcessDefinition) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshal definition %s: %w", def.ID, err)
	}
	return string(data), nil
}

// unmarshalDefinition rebuilds a definition tree from stored JSON TEXT.
func unmarshalDefinition(data string) (*definition.ProcessDefinition, error) {
	var def definition.ProcessDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &def, nil
}

// marshalTime stores times as UTC RFC 3339 with nanoseconds. The zero time
// is stored as the empty string.
func marshalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func unmarshalTime(data string) (time.Time, error) {
	if data == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, data)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal time %q: %w", data, err)
	}
	return t, nil
}

// boolInt maps a flag to the INTEGER column form.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
