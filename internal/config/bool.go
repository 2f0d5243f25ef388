package config

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Bool accepts JSON booleans and the strings true/false, yes/no, on/off.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*b = Bool(x)
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "y", "on", "true":
			*b = true
			return nil
		case "no", "n", "off", "false":
			*b = false
			return nil
		}
		return &BoolError{Value: x}
	default:
		return &BoolError{Value: string(data)}
	}
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}
