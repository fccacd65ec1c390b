package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
)

var ErrUnknownColumn = errors.New("unknown index column")

// Column is a plain column mirrored from the first present string field in Keys.
type Column struct {
	Name string
	Keys []string
}

// Collection names a table and its indexed columns.
type Collection struct {
	Table   string
	Columns []Column
}

var (
	Clients = Collection{Table: "clients"}

	Reminders = Collection{
		Table: "reminders",
		Columns: []Column{
			{Name: "client_id", Keys: []string{"clientId", "client_id"}},
			{Name: "due_date", Keys: []string{"dueDate", "due_date", "reminderDate", "reminder_date"}},
		},
	}
)

type SQLiteRepository struct {
	db  dbx.DBTX
	col Collection
}

func NewSQLiteRepository(db dbx.DBTX, col Collection) *SQLiteRepository {
	return &SQLiteRepository{db: db, col: col}
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT data FROM %s ORDER BY rowid`, r.col.Table)
	return r.query(ctx, query)
}

func (r *SQLiteRepository) FindBy(ctx context.Context, column, value string) ([]models.Record, error) {
	if !r.hasColumn(column) {
		return nil, fmt.Errorf("%s.%s: %w", r.col.Table, column, ErrUnknownColumn)
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE %s = ? ORDER BY rowid`, r.col.Table, column)
	return r.query(ctx, query, value)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, r.col.Table)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.col.Table, id, err)
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s[%s]: %w", r.col.Table, id, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s]: %w", r.col.Table, rec.ID, err)
	}

	args := []any{rec.ID, rec.CreatedAt, rec.UpdatedAt, data}
	for _, c := range r.col.Columns {
		args = append(args, rec.FirstString(c.Keys...))
	}

	if _, err := r.db.ExecContext(ctx, r.upsertQuery(), args...); err != nil {
		return fmt.Errorf("failed to upsert %s[%s]: %w", r.col.Table, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) BulkInsert(ctx context.Context, rs []models.Record) error {
	for _, rec := range rs {
		if err := r.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.col.Table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", r.col.Table, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.col.Table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", r.col.Table, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.col.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.col.Table, err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.col.Table, err)
	}
	defer rows.Close()

	result := []models.Record{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.col.Table, err)
		}
		var rec models.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", r.col.Table, err)
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.col.Table, err)
	}
	return result, nil
}

func (r *SQLiteRepository) upsertQuery() string {
	cols := []string{"id", "created_at", "updated_at", "data"}
	for _, c := range r.col.Columns {
		cols = append(cols, c.Name)
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}

	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		r.col.Table, strings.Join(cols, ", "), marks, strings.Join(sets, ", "))
}

func (r *SQLiteRepository) hasColumn(name string) bool {
	for _, c := range r.col.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
