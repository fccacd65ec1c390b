package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/dmitrijs2005/clientkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Publisher announces inserted snapshots. It is nil when the database
// trigger feeds subscribers instead.
type Publisher interface {
	Publish(ctx context.Context, ev models.SnapshotEvent)
}

// NewSnapshot is an upload as received from a device.
type NewSnapshot struct {
	ID             string
	ClientsCount   int
	RemindersCount int
	Payload        []byte
	Nonce          []byte
}

// SnapshotService stores, lists and prunes backup snapshots. Payloads go to
// the blob store when one is configured and into the row otherwise.
type SnapshotService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	publisher   Publisher
	clock       clockwork.Clock
	logger      logging.Logger
}

func NewSnapshotService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store, publisher Publisher, clock clockwork.Clock, logger logging.Logger) *SnapshotService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SnapshotService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("module", "snapshots"),
	}
}

// Insert stores a snapshot for ownerID. An empty ID gets a fresh UUID; a
// duplicate one yields common.ErrorConflict.
func (s *SnapshotService) Insert(ctx context.Context, ownerID string, in NewSnapshot) (*models.Snapshot, error) {
	if ownerID == "" {
		return nil, common.ErrorUnauthorized
	}
	if len(in.Payload) == 0 || in.ClientsCount < 0 || in.RemindersCount < 0 {
		return nil, common.ErrorInvalidArgument
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("snapshot id %q: %w", id, common.ErrorInvalidArgument)
	}

	snap := &models.Snapshot{
		ID:             id,
		OwnerID:        ownerID,
		ClientsCount:   in.ClientsCount,
		RemindersCount: in.RemindersCount,
		Nonce:          in.Nonce,
	}

	if s.blobs != nil {
		snap.StorageKey = blobstore.RandomKey(ownerID, s.clock.Now())
		if err := s.blobs.Put(ctx, snap.StorageKey, in.Payload); err != nil {
			return nil, fmt.Errorf("store payload: %w", err)
		}
	} else {
		snap.Payload = in.Payload
	}

	if err := s.repomanager.Snapshots(s.db).Insert(ctx, snap); err != nil {
		if snap.StorageKey != "" {
			s.dropBlob(ctx, snap.StorageKey)
		}
		if errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	s.logger.Info(ctx, "snapshot inserted", "owner", ownerID, "snapshot", snap.ID,
		"clients", snap.ClientsCount, "reminders", snap.RemindersCount)

	if s.publisher != nil {
		s.publisher.Publish(ctx, models.SnapshotEvent{ID: snap.ID, OwnerID: ownerID, CreatedAt: snap.CreatedAt})
	}

	snap.Payload = in.Payload
	return snap, nil
}

// Latest returns ownerID's newest snapshot with its payload, or
// common.ErrorNotFound.
func (s *SnapshotService) Latest(ctx context.Context, ownerID string) (*models.Snapshot, error) {
	snap, err := s.repomanager.Snapshots(s.db).Latest(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if snap.StorageKey == "" {
		return snap, nil
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("snapshot %s kept in object storage, none configured: %w", snap.ID, common.ErrorInternal)
	}
	payload, err := s.blobs.Get(ctx, snap.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	snap.Payload = payload
	return snap, nil
}

// List returns snapshot metadata newest first. A limit of zero lists all.
func (s *SnapshotService) List(ctx context.Context, ownerID string, limit int) ([]models.Snapshot, error) {
	if limit < 0 {
		return nil, common.ErrorInvalidArgument
	}
	return s.repomanager.Snapshots(s.db).List(ctx, ownerID, limit)
}

// Delete removes ownerID's snapshots with the given ids and reports how many
// went. Blob removal is best effort.
func (s *SnapshotService) Delete(ctx context.Context, ownerID string, ids []string) (int64, error) {
	keys, err := s.repomanager.Snapshots(s.db).Delete(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if key != "" {
			s.dropBlob(ctx, key)
		}
	}
	if len(keys) > 0 {
		s.logger.Info(ctx, "snapshots deleted", "owner", ownerID, "count", len(keys))
	}
	return int64(len(keys)), nil
}

func (s *SnapshotService) dropBlob(ctx context.Context, key string) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "orphaned snapshot payload", "key", key, "error", err)
	}
}
