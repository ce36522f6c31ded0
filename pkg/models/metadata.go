package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Metadata is the opaque, provider-specific JSON object stored with a record
type Metadata map[string]any

// Merge returns a copy of m with the entries of other laid over it
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer, storing the map as a JSON document
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}

	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	*m = out
	return nil
}
