package repositories

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

func toJSONColumn(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return datatypes.JSON(raw), nil
}

func fromJSONColumn(col datatypes.JSON, out interface{}) error {
	if len(col) == 0 {
		return nil
	}
	if err := json.Unmarshal(col, out); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func rawJSONColumn(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		return datatypes.JSON(quoted)
	}
	return datatypes.JSON(raw)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
