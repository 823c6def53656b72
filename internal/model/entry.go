// Package model defines the persisted and in-flight data types.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Entry is one persisted record. Fields is schemaless; each collection's
// owner decides what shape it expects.
type Entry struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Created    time.Time      `json:"created"`
	Updated    time.Time      `json:"updated"`
	Fields     map[string]any `json:"fields"`
}

// String returns the field as a string. Non-string scalars are formatted;
// missing fields yield "".
func (e *Entry) String(key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Bool reports a boolean field, false when missing or not a bool.
func (e *Entry) Bool(key string) bool {
	b, _ := e.Fields[key].(bool)
	return b
}

// Time parses an RFC3339 field.
func (e *Entry) Time(key string) (time.Time, bool) {
	s, ok := e.Fields[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Int returns a numeric field. JSON numbers decode as float64.
func (e *Entry) Int(key string) int {
	switch v := e.Fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Stringify renders a field value for display and search. Strings are
// returned verbatim, everything else as compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FormatTime is the on-disk timestamp format for time-valued fields.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
