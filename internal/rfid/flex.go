package rfid

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ESP-RFID firmware versions disagree about wire types: booleans arrive as
// "true"/"false" strings, numbers as quoted strings, and door/access fields
// as either a string or a list. These types absorb the variants so the
// classifier sees one canonical shape.

// flexString accepts a JSON string, number, or array of strings.
// Arrays are joined with ", " (multi-door boards report door names as a list).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = flexString(strings.Join(list, ", "))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}

	// Unrecognised shape: keep the raw text rather than failing the whole
	// message.
	*f = flexString(string(data))
	return nil
}

// flexBool accepts a JSON bool or the strings "true"/"false"/"1"/"0".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexBool(s == "true" || s == "1")
		return nil
	}

	*f = false
	return nil
}

// flexInt accepts a JSON number or a quoted number string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err == nil {
			*f = flexInt(parsed)
		}
		return nil
	}

	*f = 0
	return nil
}
