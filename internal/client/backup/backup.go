// Package backup is the user-driven side of backup and restore: export to
// and import from a JSON file, clearing local data and one-shot cloud
// backup/restore without debouncing.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/client/validate"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/filex"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/jonboulle/clockwork"
)

var ErrNotLoggedIn = errors.New("not logged in")

// Store is the local data the flow reads and replaces.
type Store interface {
	AllClients(ctx context.Context) ([]models.Record, error)
	AllReminders(ctx context.Context) ([]models.Record, error)
	ReplaceAll(ctx context.Context, clients, reminders []models.Record) error
	ReplaceClients(ctx context.Context, clients []models.Record) error
	ClearClients(ctx context.Context) error
	GetSettings(ctx context.Context) (models.Settings, error)
	SetLastBackupDate(ctx context.Context, ts string) error
}

// Syncer is the sync engine as seen from here.
type Syncer interface {
	TriggerSync(ctx context.Context)
	BackupToCloud(ctx context.Context, silent bool) bool
	RestoreFromCloud(ctx context.Context, silent bool) bool
}

// Owner supplies the signed-in owner id, "" when signed out.
type Owner interface {
	OwnerID() string
}

// Result summarises what an import loaded.
type Result struct {
	Clients   int
	Reminders int
	// RemindersReplaced is false when the file had no reminders array and
	// local reminders were kept.
	RemindersReplaced bool
}

type Service struct {
	store     Store
	syncer    Syncer
	remote    client.BackupStore
	owner     Owner
	validator *validate.Validator
	clock     clockwork.Clock
	logger    logging.Logger
}

func New(store Store, syncer Syncer, remote client.BackupStore, owner Owner, clock clockwork.Clock, l logging.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:     store,
		syncer:    syncer,
		remote:    remote,
		owner:     owner,
		validator: validate.New(l),
		clock:     clock,
		logger:    l.With("module", "backup"),
	}
}

// Export writes every local client and reminder plus settings as one JSON
// document and records the backup date.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	data, exportedAt, err := s.exportDocument(ctx)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return s.store.SetLastBackupDate(ctx, exportedAt)
}

// ExportFile is Export into a file, replaced atomically.
func (s *Service) ExportFile(ctx context.Context, path string) error {
	data, exportedAt, err := s.exportDocument(ctx)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(path, data, 0o600); err != nil {
		return err
	}
	s.logger.Info(ctx, "exported backup", "path", path)
	return s.store.SetLastBackupDate(ctx, exportedAt)
}

func (s *Service) exportDocument(ctx context.Context) ([]byte, string, error) {
	clients, err := s.store.AllClients(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read clients: %w", err)
	}
	reminders, err := s.store.AllReminders(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read reminders: %w", err)
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read settings: %w", err)
	}

	exportedAt := common.FormatTimestamp(s.clock.Now())
	doc := models.ExportFile{
		Version:    models.SchemaVersion,
		ExportedAt: exportedAt,
		Clients:    clients,
		Reminders:  reminders,
		Settings:   &settings,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode export: %w", err)
	}
	return data, exportedAt, nil
}

// ImportFile loads a file written by Export (or by older versions of the
// app). Files over the size limit are rejected without being read. Nothing
// local changes unless the whole file validates.
func (s *Service) ImportFile(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if fi.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}

	f := validate.File{
		Name:        filepath.Base(path),
		Size:        fi.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}
	if f.Size > validate.MaxFileSize {
		return s.Import(ctx, f)
	}

	f.Data, err = os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return s.Import(ctx, f)
}

// Import validates f and replaces local clients, and reminders when f has
// them. A successful import is queued for cloud sync.
func (s *Service) Import(ctx context.Context, f validate.File) (Result, error) {
	b, err := s.validator.File(ctx, f)
	if err != nil {
		return Result{}, err
	}

	res, err := s.load(ctx, b)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info(ctx, "imported backup", "file", f.Name, "clients", res.Clients, "reminders", res.Reminders)
	s.syncer.TriggerSync(ctx)
	return res, nil
}

// RecoverFile reads a dump this device exported earlier and reloads it with
// RecoverLocal.
func (s *Service) RecoverFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	res, err := s.RecoverLocal(ctx, data)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info(ctx, "recovered local dump", "file", filepath.Base(path), "clients", res.Clients, "reminders", res.Reminders)
	return res, nil
}

// RecoverLocal reloads a dump this device wrote itself, cutting oversized
// collections down instead of refusing them.
func (s *Service) RecoverLocal(ctx context.Context, data []byte) (Result, error) {
	b, err := s.validator.Local(ctx, data)
	if err != nil {
		return Result{}, err
	}
	res, err := s.load(ctx, b)
	if err != nil {
		return Result{}, err
	}
	s.syncer.TriggerSync(ctx)
	return res, nil
}

func (s *Service) load(ctx context.Context, b *models.Backup) (Result, error) {
	res := Result{Clients: len(b.Clients), Reminders: len(b.Reminders), RemindersReplaced: b.HasReminders}

	var err error
	if b.HasReminders {
		err = s.store.ReplaceAll(ctx, b.Clients, b.Reminders)
	} else {
		err = s.store.ReplaceClients(ctx, b.Clients)
	}
	if err != nil {
		return Result{}, fmt.Errorf("replace local data: %w", err)
	}
	return res, nil
}

// ClearAll wipes local clients. The cloud copy is left alone.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearClients(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "local clients cleared")
	return nil
}

// BackupNow pushes immediately and reports the outcome to the user.
func (s *Service) BackupNow(ctx context.Context) bool {
	return s.syncer.BackupToCloud(ctx, false)
}

// RestoreNow pulls the newest snapshot and reports the outcome to the user.
func (s *Service) RestoreNow(ctx context.Context) bool {
	return s.syncer.RestoreFromCloud(ctx, false)
}

// ListBackups returns the cloud snapshots of the signed-in owner, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]models.SnapshotMeta, error) {
	owner := s.owner.OwnerID()
	if owner == "" {
		return nil, ErrNotLoggedIn
	}
	return s.remote.ListSnapshots(ctx, owner)
}

// DeleteAllBackups removes every cloud snapshot of the signed-in owner and
// returns how many there were.
func (s *Service) DeleteAllBackups(ctx context.Context) (int, error) {
	owner := s.owner.OwnerID()
	if owner == "" {
		return 0, ErrNotLoggedIn
	}
	ids, err := s.remote.ListSnapshotIDs(ctx, owner)
	if err != nil {
		return 0, err
	}
	if err := s.remote.DeleteSnapshots(ctx, owner, ids); err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "deleted all cloud backups", "count", len(ids))
	return len(ids), nil
}
