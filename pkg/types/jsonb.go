package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonValue marshals v for a JSONB column; nil collections are written as empty.
func jsonValue(v any, empty string) (driver.Value, error) {
	if v == nil {
		return empty, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(buf) == "null" {
		return empty, nil
	}
	return string(buf), nil
}

func jsonScan(value any, dst any, label string) error {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%s: unsupported scan type %T", label, value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}
