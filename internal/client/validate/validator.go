package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
)

// File is a file-like input: declared size, optional content type and bytes.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

type Validator struct {
	logger logging.Logger
}

func New(l logging.Logger) *Validator {
	return &Validator{logger: l.With("module", "validator")}
}

// File checks size and content type before looking at the bytes.
func (v *Validator) File(ctx context.Context, f File) (*models.Backup, error) {
	size := f.Size
	if size == 0 {
		size = int64(len(f.Data))
	}
	if size > MaxFileSize {
		return nil, v.reject(ctx, fail("", "file is larger than %d bytes", MaxFileSize))
	}
	if f.ContentType != "" && !jsonLike(f.ContentType) {
		return nil, v.reject(ctx, fail("", "unsupported content type %q", f.ContentType))
	}
	return v.Bytes(ctx, f.Data)
}

// Bytes validates a raw JSON document.
func (v *Validator) Bytes(ctx context.Context, data []byte) (*models.Backup, error) {
	b, err := v.parse(ctx, data, false)
	if err != nil {
		return nil, v.reject(ctx, err)
	}
	return b, nil
}

// Local is the lenient path for data the device wrote itself: oversized
// collections are cut down to the limits with a warning instead of being
// rejected. It must not be used for anything received from elsewhere.
func (v *Validator) Local(ctx context.Context, data []byte) (*models.Backup, error) {
	b, err := v.parse(ctx, data, true)
	if err != nil {
		return nil, v.reject(ctx, err)
	}
	return b, nil
}

func (v *Validator) reject(ctx context.Context, err *Error) error {
	v.logger.Warn(ctx, "backup rejected", "path", err.Path, "reason", err.Reason)
	return err
}

func (v *Validator) parse(ctx context.Context, data []byte, lenient bool) (*models.Backup, *Error) {
	if len(data) > MaxFileSize {
		return nil, fail("", "payload is larger than %d bytes", MaxFileSize)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, fail("", "payload is not a JSON object")
	}

	out := &models.Backup{}

	version, verr := readVersion(top)
	if verr != nil {
		return nil, verr
	}
	out.Version = version

	if raw, ok := present(top, "exportedAt"); ok {
		s, err := readString("exportedAt", raw, maxExportedAt)
		if err != nil {
			return nil, err
		}
		out.ExportedAt = s
	}

	rawClients, ok := present(top, "clients")
	if !ok {
		return nil, fail("clients", "is required")
	}
	clients, cerr := readArray("clients", rawClients)
	if cerr != nil {
		return nil, cerr
	}
	clients = v.limit(ctx, "clients", clients, MaxClients, lenient)
	if cerr := checkLimit("clients", clients, MaxClients); cerr != nil {
		return nil, cerr
	}
	out.Clients = make([]models.Record, 0, len(clients))
	for i, raw := range clients {
		rec, err := readRecord(fmt.Sprintf("clients.%d", i), raw, clientFields, nil)
		if err != nil {
			return nil, err
		}
		out.Clients = append(out.Clients, rec)
	}

	out.Reminders = []models.Record{}
	if rawReminders, ok := present(top, "reminders"); ok {
		reminders, rerr := readArray("reminders", rawReminders)
		if rerr != nil {
			return nil, rerr
		}
		reminders = v.limit(ctx, "reminders", reminders, MaxReminders, lenient)
		if rerr := checkLimit("reminders", reminders, MaxReminders); rerr != nil {
			return nil, rerr
		}
		out.HasReminders = true
		out.Reminders = make([]models.Record, 0, len(reminders))
		for i, raw := range reminders {
			rec, err := readRecord(fmt.Sprintf("reminders.%d", i), raw, reminderFields, reminderHasKind)
			if err != nil {
				return nil, err
			}
			out.Reminders = append(out.Reminders, rec)
		}
	}

	if raw, ok := present(top, "settings"); ok {
		s, err := readSettings(raw)
		if err != nil {
			return nil, err
		}
		out.Settings = s
	}

	return out, nil
}

func (v *Validator) limit(ctx context.Context, path string, items []json.RawMessage, max int, lenient bool) []json.RawMessage {
	if !lenient || len(items) <= max {
		return items
	}
	v.logger.Warn(ctx, "truncating oversized collection", "path", path, "count", len(items), "limit", max)
	return items[:max]
}

func checkLimit(path string, items []json.RawMessage, max int) *Error {
	if len(items) > max {
		return fail(path, "has %d items, limit is %d", len(items), max)
	}
	return nil
}

func readVersion(top map[string]json.RawMessage) (int, *Error) {
	key := "version"
	raw, ok := present(top, key)
	if !ok {
		key = "schemaVersion"
		raw, ok = present(top, key)
	}
	if !ok {
		return 0, fail("version", "is required")
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return 0, fail(key, "must be an integer")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, fail(key, "must be an integer")
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fail(key, "must be an integer")
	}
	if i < 1 {
		return 0, fail(key, "must be at least 1")
	}
	return int(i), nil
}

func readArray(path string, raw json.RawMessage) ([]json.RawMessage, *Error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail(path, "must be an array")
	}
	return items, nil
}

func readRecord(path string, raw json.RawMessage, fields []field, extra func(string, map[string]json.RawMessage) *Error) (models.Record, *Error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return models.Record{}, fail(path, "must be an object")
	}
	if err := checkFields(path, obj, fields); err != nil {
		return models.Record{}, err
	}
	if extra != nil {
		if err := extra(path, obj); err != nil {
			return models.Record{}, err
		}
	}

	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.Record{}, fail(path, "cannot decode record")
	}
	return rec, nil
}

func readSettings(raw json.RawMessage) (*models.Settings, *Error) {
	if isNull(raw) {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fail("settings", "must be an object")
	}
	if err := checkFields("settings", obj, settingsFields); err != nil {
		return nil, err
	}
	var s models.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fail("settings", "cannot decode settings")
	}
	return &s, nil
}

func checkFields(path string, obj map[string]json.RawMessage, fields []field) *Error {
	for _, f := range fields {
		fp := path + "." + f.name
		raw, ok := present(obj, f.name)
		if !ok {
			if f.must {
				return fail(fp, "is required")
			}
			continue
		}
		s, err := readString(fp, raw, f.max)
		if err != nil {
			return err
		}
		if f.must && strings.TrimSpace(s) == "" {
			return fail(fp, "must not be empty")
		}
		if f.email && s != "" && !emailRe.MatchString(s) {
			return fail(fp, "must be a valid email address")
		}
	}
	return nil
}

func reminderHasKind(path string, obj map[string]json.RawMessage) *Error {
	for _, k := range []string{"type", "title"} {
		if raw, ok := present(obj, k); ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
				return nil
			}
		}
	}
	return fail(path+".type", "type or title is required")
}

func readString(path string, raw json.RawMessage, max int) (string, *Error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fail(path, "must be a string")
	}
	if n := utf8.RuneCountInString(s); n > max {
		return "", fail(path, "is %d characters, limit is %d", n, max)
	}
	return s, nil
}

// present reports whether key exists with a non-null value.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func jsonLike(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "text/json" || strings.HasSuffix(mt, "+json")
}

// Client checks one client record with the same rules an import applies.
func Client(r models.Record) error {
	return checkOne("client", r, clientFields, nil)
}

// Reminder checks one reminder record with the same rules an import applies.
func Reminder(r models.Record) error {
	return checkOne("reminder", r, reminderFields, reminderHasKind)
}

func checkOne(path string, r models.Record, fields []field, extra func(string, map[string]json.RawMessage) *Error) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return &Error{Path: path, Reason: err.Error(), kind: ErrInvalidRecord}
	}
	if _, verr := readRecord(path, raw, fields, extra); verr != nil {
		verr.kind = ErrInvalidRecord
		return verr
	}
	return nil
}
