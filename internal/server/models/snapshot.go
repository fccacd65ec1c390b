package models

import "time"

// Snapshot is one stored backup of an owner's whole dataset. Payload is
// sealed on the device. When StorageKey is set the payload lives in object
// storage and Payload is only filled on read.
type Snapshot struct {
	ID             string
	OwnerID        string
	Seq            int64
	CreatedAt      time.Time
	ClientsCount   int
	RemindersCount int
	StorageKey     string
	Payload        []byte
	Nonce          []byte
}

// SnapshotEvent announces an inserted snapshot to the owner's subscribers.
type SnapshotEvent struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
