package models

import "encoding/json"

// SettingsKey is the primary key of the settings singleton.
const SettingsKey = "app"

// Settings is the app settings singleton. Only LastBackupDate is used by
// sync; the rest is carried through backups untouched.
type Settings struct {
	LastBackupDate string
	Theme          string
	Extra          map[string]json.RawMessage
}

func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	if err := putString(out, "lastBackupDate", s.LastBackupDate); err != nil {
		return nil, err
	}
	if err := putString(out, "theme", s.Theme); err != nil {
		return nil, err
	}
	return marshalSorted(out)
}

func (s *Settings) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.LastBackupDate = takeString(raw, "lastBackupDate")
	s.Theme = takeString(raw, "theme")
	s.Extra = raw
	return nil
}
