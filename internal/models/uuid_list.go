package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid"
)

// UUIDList is stored as a jsonb array so provenance lists stay append-only
// without a join table.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into UUIDList", value)
	}

	return json.Unmarshal(data, l)
}

// Contains reports whether id is already recorded in the list.
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, existing := range l {
		if existing == id {
			return true
		}
	}
	return false
}
