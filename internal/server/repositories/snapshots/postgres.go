package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db      dbx.DBTX
	orderBy string
}

// NewPostgresRepository binds the repository to db. tieBreak is TieBreakSeq
// or TieBreakID; anything else means TieBreakSeq.
func NewPostgresRepository(db dbx.DBTX, tieBreak string) *PostgresRepository {
	orderBy := "created_at DESC, seq DESC"
	if tieBreak == TieBreakID {
		orderBy = "created_at DESC, id DESC"
	}
	return &PostgresRepository{db: db, orderBy: orderBy}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Snapshot) error {
	query := `
		INSERT INTO snapshots (id, owner_id, clients_count, reminders_count, storage_key, payload, nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.OwnerID, s.ClientsCount, s.RemindersCount, s.StorageKey, s.Payload, s.Nonce,
	).Scan(&s.Seq, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context, ownerID string) (*models.Snapshot, error) {
	query := `
		SELECT id, owner_id, seq, created_at, clients_count, reminders_count, storage_key, payload, nonce
		FROM snapshots
		WHERE owner_id = $1
		ORDER BY ` + r.orderBy + `
		LIMIT 1
	`
	s := &models.Snapshot{}
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&s.ID, &s.OwnerID, &s.Seq, &s.CreatedAt, &s.ClientsCount, &s.RemindersCount, &s.StorageKey, &s.Payload, &s.Nonce,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string, limit int) ([]models.Snapshot, error) {
	query := `
		SELECT id, owner_id, seq, created_at, clients_count, reminders_count, storage_key
		FROM snapshots
		WHERE owner_id = $1
		ORDER BY ` + r.orderBy
	args := []any{ownerID}
	if limit > 0 {
		query += `
		LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var list []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Seq, &s.CreatedAt, &s.ClientsCount, &s.RemindersCount, &s.StorageKey); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		DELETE FROM snapshots
		WHERE owner_id = $1 AND id IN (` + dbx.Placeholders(2, len(ids)) + `)
		RETURNING storage_key
	`
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}
