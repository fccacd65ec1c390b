package api

import "time"

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterUserRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type RegisterUserResponse struct {
	UserID string `json:"user_id"`
}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username          string `json:"username"`
	VerifierCandidate []byte `json:"verifier_candidate"`
}

type LoginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SnapshotInfo is the metadata half of a snapshot row.
type SnapshotInfo struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	ClientsCount   int       `json:"clients_count"`
	RemindersCount int       `json:"reminders_count"`
}

// Snapshot carries the sealed payload together with its metadata.
// An empty Nonce means Payload is plain JSON.
type Snapshot struct {
	SnapshotInfo
	Payload []byte `json:"payload"`
	Nonce   []byte `json:"nonce,omitempty"`
}

type InsertSnapshotRequest struct {
	// ID is proposed by the device; the server assigns one when empty.
	ID             string `json:"id,omitempty"`
	ClientsCount   int    `json:"clients_count"`
	RemindersCount int    `json:"reminders_count"`
	Payload        []byte `json:"payload"`
	Nonce          []byte `json:"nonce,omitempty"`
}

type InsertSnapshotResponse struct {
	Snapshot SnapshotInfo `json:"snapshot"`
}

type GetLatestSnapshotRequest struct{}

type GetLatestSnapshotResponse struct {
	Snapshot Snapshot `json:"snapshot"`
}

type ListSnapshotsRequest struct {
	// Limit of zero returns every snapshot.
	Limit int `json:"limit,omitempty"`
}

type ListSnapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

type DeleteSnapshotsRequest struct {
	IDs []string `json:"ids"`
}

type DeleteSnapshotsResponse struct {
	Deleted int64 `json:"deleted"`
}

type SubscribeRequest struct{}

// SnapshotEvent is pushed to subscribers whenever a snapshot is inserted
// for their owner.
type SnapshotEvent struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
