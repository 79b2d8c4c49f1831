package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalText converts v to JSON TEXT for storage.
// HTML escaping is disabled so stored messages read as written.
func marshalText(what string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalText parses JSON TEXT into v. Empty text leaves v untouched.
func unmarshalText(what, data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
