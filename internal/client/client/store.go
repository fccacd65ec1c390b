package client

import (
	"context"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
)

// BackupStore is the remote snapshot store as seen by one device.
type BackupStore interface {
	// InsertSnapshot stores a new snapshot. The store keeps s.ID when set.
	InsertSnapshot(ctx context.Context, ownerID string, s models.NewSnapshot) (models.SnapshotMeta, error)

	// GetLatestSnapshot returns the newest snapshot or ErrNotFound.
	GetLatestSnapshot(ctx context.Context, ownerID string) (*models.Snapshot, error)

	// ListSnapshotIDs returns snapshot ids newest first.
	ListSnapshotIDs(ctx context.Context, ownerID string) ([]string, error)

	// ListSnapshots returns snapshot metadata newest first.
	ListSnapshots(ctx context.Context, ownerID string) ([]models.SnapshotMeta, error)

	DeleteSnapshots(ctx context.Context, ownerID string, ids []string) error

	// SubscribeToInserts calls cb for every snapshot inserted for ownerID
	// until the returned function is called.
	SubscribeToInserts(ctx context.Context, ownerID string, cb func(models.SnapshotMeta)) (func(), error)
}

// Auth is the account half of the remote API.
type Auth interface {
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	// Login returns the owner id of the account.
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	Ping(ctx context.Context) error
}
