package repository

import (
	"database/sql/driver"
	"fmt"
)

// JSONField stores raw JSON in a database column.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONField(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONField", value)
	}
	return nil
}
