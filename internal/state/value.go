package state

import (
	"encoding/json"
	"fmt"
)

// Durable tiers store values as JSON text. Decoded values follow the usual
// encoding/json mapping (numbers come back as float64).
func encodeValue(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("state: value not JSON-serializable: %w", err)
	}
	return string(b), nil
}

func decodeValue(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("state: stored value corrupt: %w", err)
	}
	return v, nil
}
