package models

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrIncorrectField = errors.New("field assignment must be name=value")

// FieldsFromString parses name=value assignments typed at the prompt.
// Quoted strings, objects, arrays, booleans and null are taken as JSON.
// Everything else, numbers included, is stored as a plain string so phone
// numbers and zip codes keep their leading zeros.
func FieldsFromString(s []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(s))
	for _, item := range s {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, ErrIncorrectField
		}
		value = strings.TrimSpace(value)
		if looksLikeJSON(value) && json.Valid([]byte(value)) {
			out[name] = json.RawMessage(value)
			continue
		}
		b, _ := json.Marshal(value)
		out[name] = b
	}
	return out, nil
}

// Apply copies fields onto r, routing id and timestamps to their typed slots.
func (r *Record) Apply(fields map[string]json.RawMessage) error {
	for k, v := range fields {
		switch k {
		case "id", "createdAt", "updatedAt":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if err := r.Set(k, s); err != nil {
				return err
			}
		default:
			if r.Fields == nil {
				r.Fields = map[string]json.RawMessage{}
			}
			r.Fields[k] = v
		}
	}
	return nil
}

func looksLikeJSON(v string) bool {
	switch v {
	case "true", "false", "null":
		return true
	case "":
		return false
	}
	switch v[0] {
	case '{', '[', '"':
		return true
	}
	return false
}
