package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MetricMap is a schemaless telemetry metric group stored as a JSONB
// column. Firmware adds and renames fields between releases, so the
// schema is deliberately open.
type MetricMap map[string]any

func (m MetricMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *MetricMap) Scan(src any) error {
	return scanJSON(src, m)
}

// UintList is a JSONB-stored array of node numbers (traceroute hops).
type UintList []uint32

func (l UintList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *UintList) Scan(src any) error {
	return scanJSON(src, l)
}

// IntList is a JSONB-stored array of signed values (per-hop SNR).
type IntList []int32

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *IntList) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src, out any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	}
	return fmt.Errorf("cannot scan %T as JSON", src)
}

// Float reads a numeric metric by key, tolerating the JSON number types
// that show up after a round trip through the database.
func (m MetricMap) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
