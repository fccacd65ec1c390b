package models

import "time"

// SchemaVersion is written into every payload and export produced here.
const SchemaVersion = 2

// Payload is the whole-dataset document stored inside a snapshot.
type Payload struct {
	SchemaVersion int      `json:"schemaVersion"`
	ExportedAt    string   `json:"exportedAt"`
	Clients       []Record `json:"clients"`
	Reminders     []Record `json:"reminders"`
}

// ExportFile is the manual export document.
type ExportFile struct {
	Version    int       `json:"version"`
	ExportedAt string    `json:"exportedAt"`
	Clients    []Record  `json:"clients"`
	Reminders  []Record  `json:"reminders"`
	Settings   *Settings `json:"settings,omitempty"`
}

// Backup is a validated, normalised backup regardless of where it came from.
type Backup struct {
	Version    int
	ExportedAt string
	Clients    []Record
	Reminders  []Record
	// HasReminders is false when the source carried no reminders array at all.
	HasReminders bool
	Settings     *Settings
}

// SnapshotMeta describes a remote snapshot without its payload.
type SnapshotMeta struct {
	ID             string
	OwnerID        string
	CreatedAt      time.Time
	ClientsCount   int
	RemindersCount int
}

// Snapshot is a remote snapshot including its sealed payload. An empty
// Nonce means Payload holds plain JSON.
type Snapshot struct {
	SnapshotMeta
	Payload []byte
	Nonce   []byte
}

// NewSnapshot is what a device hands to the remote store on push.
type NewSnapshot struct {
	ID             string
	ClientsCount   int
	RemindersCount int
	Payload        []byte
	Nonce          []byte
}
