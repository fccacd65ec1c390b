// Package models defines the client-side data shapes: opaque records,
// settings, backup payloads and snapshot metadata.
package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/google/uuid"
)

// Record is a client or reminder document. ID and the two timestamps are
// typed; every other field stays raw JSON so unknown fields survive a
// backup/restore round-trip unchanged.
type Record struct {
	ID        string
	CreatedAt string
	UpdatedAt string
	Fields    map[string]json.RawMessage
}

// NewRecord returns a record with a fresh UUID and both timestamps set to now.
func NewRecord(now time.Time) Record {
	ts := common.FormatTimestamp(now)
	return Record{ID: uuid.NewString(), CreatedAt: ts, UpdatedAt: ts, Fields: map[string]json.RawMessage{}}
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	if err := putString(out, "id", r.ID); err != nil {
		return nil, err
	}
	if err := putString(out, "createdAt", r.CreatedAt); err != nil {
		return nil, err
	}
	if err := putString(out, "updatedAt", r.UpdatedAt); err != nil {
		return nil, err
	}
	return marshalSorted(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.ID = takeString(raw, "id")
	r.CreatedAt = takeString(raw, "createdAt")
	r.UpdatedAt = takeString(raw, "updatedAt")
	r.Fields = raw
	return nil
}

// String returns a string-valued field. ok is false when the field is absent
// or not a JSON string.
func (r Record) String(key string) (value string, ok bool) {
	switch key {
	case "id":
		return r.ID, r.ID != ""
	case "createdAt":
		return r.CreatedAt, r.CreatedAt != ""
	case "updatedAt":
		return r.UpdatedAt, r.UpdatedAt != ""
	}
	raw, present := r.Fields[key]
	if !present {
		return "", false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// FirstString returns the first present string field among keys.
func (r Record) FirstString(keys ...string) string {
	for _, k := range keys {
		if v, ok := r.String(k); ok {
			return v
		}
	}
	return ""
}

// Set stores value under key as JSON.
func (r *Record) Set(key string, value any) error {
	switch key {
	case "id", "createdAt", "updatedAt":
		s, _ := value.(string)
		switch key {
		case "id":
			r.ID = s
		case "createdAt":
			r.CreatedAt = s
		default:
			r.UpdatedAt = s
		}
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if r.Fields == nil {
		r.Fields = map[string]json.RawMessage{}
	}
	r.Fields[key] = b
	return nil
}

// Delete removes an extra field.
func (r *Record) Delete(key string) {
	delete(r.Fields, key)
}

// Touch bumps UpdatedAt.
func (r *Record) Touch(now time.Time) {
	r.UpdatedAt = common.FormatTimestamp(now)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	c.Fields = make(map[string]json.RawMessage, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

func putString(m map[string]json.RawMessage, key, value string) error {
	if value == "" {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

// takeString moves a string field out of m. Non-string values stay in m.
func takeString(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	delete(m, key)
	return s
}

func marshalSorted(m map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if len(m[k]) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(m[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
