// Package localstore is the on-device database: clients, reminders, the
// settings singleton and the durable sync flags, all in one SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/clientkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/clientkeeper/internal/client/repositories/settings"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Store groups the repositories over one database handle.
type Store struct {
	db *sql.DB

	// replaceMu keeps readers of whole collections away from a half-done
	// clear+load.
	replaceMu sync.RWMutex

	clients   records.Repository
	reminders records.Repository
	settings  settings.Repository
	meta      metadata.Repository
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:        db,
		clients:   records.NewSQLiteRepository(db, records.Clients),
		reminders: records.NewSQLiteRepository(db, records.Reminders),
		settings:  settings.NewSQLiteRepository(db),
		meta:      metadata.NewSQLiteRepository(db),
	}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)
	// stdout belongs to the prompt
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if !strings.Contains(dsn, "_pragma") && dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for services that run their own transactions.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Clients() records.Repository   { return s.clients }
func (s *Store) Reminders() records.Repository { return s.reminders }
func (s *Store) Settings() settings.Repository { return s.settings }
func (s *Store) Metadata() metadata.Repository { return s.meta }

// AllClients reads the clients collection, never observing a replace midway.
func (s *Store) AllClients(ctx context.Context) ([]models.Record, error) {
	s.replaceMu.RLock()
	defer s.replaceMu.RUnlock()
	return s.clients.GetAll(ctx)
}

// AllReminders reads the reminders collection, never observing a replace midway.
func (s *Store) AllReminders(ctx context.Context) ([]models.Record, error) {
	s.replaceMu.RLock()
	defer s.replaceMu.RUnlock()
	return s.reminders.GetAll(ctx)
}

// ReplaceAll clears both collections and loads the given records in one
// transaction. On error nothing changes.
func (s *Store) ReplaceAll(ctx context.Context, clients, reminders []models.Record) error {
	return s.replace(ctx, clients, reminders, true)
}

// ReplaceClients does the same for clients only and leaves reminders alone.
func (s *Store) ReplaceClients(ctx context.Context, clients []models.Record) error {
	return s.replace(ctx, clients, nil, false)
}

func (s *Store) replace(ctx context.Context, clients, reminders []models.Record, withReminders bool) error {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c := records.NewSQLiteRepository(tx, records.Clients)
		if err := c.Clear(ctx); err != nil {
			return err
		}
		if err := c.BulkInsert(ctx, clients); err != nil {
			return err
		}
		if !withReminders {
			return nil
		}
		r := records.NewSQLiteRepository(tx, records.Reminders)
		if err := r.Clear(ctx); err != nil {
			return err
		}
		return r.BulkInsert(ctx, reminders)
	})
}

// ClearClients wipes the clients collection.
func (s *Store) ClearClients(ctx context.Context) error {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()
	return s.clients.Clear(ctx)
}

func (s *Store) SyncPending(ctx context.Context) (bool, error) {
	v, ok, err := s.meta.GetString(ctx, common.MetaSyncPending)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

func (s *Store) SetSyncPending(ctx context.Context, pending bool) error {
	if pending {
		return s.meta.SetString(ctx, common.MetaSyncPending, "true")
	}
	return s.meta.Delete(ctx, common.MetaSyncPending)
}

func (s *Store) LastRestoredOwner(ctx context.Context) (string, error) {
	v, _, err := s.meta.GetString(ctx, common.MetaLastRestoredOwner)
	return v, err
}

func (s *Store) SetLastRestoredOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return s.meta.Delete(ctx, common.MetaLastRestoredOwner)
	}
	return s.meta.SetString(ctx, common.MetaLastRestoredOwner, ownerID)
}

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.settings.Get(ctx)
}

func (s *Store) SetLastBackupDate(ctx context.Context, ts string) error {
	return s.settings.SetLastBackupDate(ctx, ts)
}
