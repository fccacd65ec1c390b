// Package snapshots stores backup snapshot rows of the backup server.
package snapshots

import (
	"context"

	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
)

// Tie-breaks for snapshots sharing a created_at timestamp.
const (
	// TieBreakSeq prefers the row inserted last.
	TieBreakSeq = "seq"
	// TieBreakID prefers the greatest id.
	TieBreakID = "id"
)

type Repository interface {
	// Insert stores s and fills Seq and CreatedAt. A duplicate id yields
	// common.ErrorConflict.
	Insert(ctx context.Context, s *models.Snapshot) error
	// Latest returns the newest snapshot of the owner including its payload
	// columns, or common.ErrorNotFound.
	Latest(ctx context.Context, ownerID string) (*models.Snapshot, error)
	// List returns snapshot metadata newest first. A limit of zero lists all.
	List(ctx context.Context, ownerID string, limit int) ([]models.Snapshot, error)
	// Delete removes the owner's snapshots with the given ids and returns
	// their storage keys. Ids of other owners are ignored.
	Delete(ctx context.Context, ownerID string, ids []string) ([]string, error)
}
