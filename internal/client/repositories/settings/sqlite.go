// Package settings persists the app settings singleton.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
)

type Repository interface {
	// Get returns the stored settings, or zero settings when none exist yet.
	Get(ctx context.Context) (models.Settings, error)
	Put(ctx context.Context, s models.Settings) error
	// SetLastBackupDate updates lastBackupDate and keeps every other field.
	SetLastBackupDate(ctx context.Context, ts string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE key = ?`, models.SettingsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, s models.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data
	`, models.SettingsKey, data)
	if err != nil {
		return fmt.Errorf("failed to put settings: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetLastBackupDate(ctx context.Context, ts string) error {
	s, err := r.Get(ctx)
	if err != nil {
		return err
	}
	s.LastBackupDate = ts
	return r.Put(ctx, s)
}
