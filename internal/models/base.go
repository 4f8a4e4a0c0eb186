package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Variables represents a JSON object for storing arbitrary data
type Variables map[string]interface{}

// Value implements driver.Valuer interface
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner interface
func (v *Variables) Scan(value interface{}) error {
	if value == nil {
		*v = make(Variables)
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("unsupported type for Variables: %T", value)
	}
}

// IntMap is a JSON object of counts keyed by bucket label
type IntMap map[string]int

// Value implements driver.Valuer interface
func (m IntMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *IntMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(IntMap)
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("unsupported type for IntMap: %T", value)
	}
}

// FloatMap is a JSON object of ratios keyed by bucket label
type FloatMap map[string]float64

// Value implements driver.Valuer interface
func (m FloatMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *FloatMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(FloatMap)
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("unsupported type for FloatMap: %T", value)
	}
}
