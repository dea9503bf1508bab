package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap stores an opaque string-keyed bag as a JSON document (jsonb on Postgres).
type StringMap map[string]string

func (m *StringMap) Scan(src any) error {
	if src == nil {
		*m = StringMap{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StringMap: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*m = StringMap{}
		return nil
	}

	out := StringMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("StringMap: %w", err)
	}
	*m = out
	return nil
}

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Clone returns a copy that can be mutated without aliasing the receiver.
func (m StringMap) Clone() StringMap {
	out := make(StringMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
