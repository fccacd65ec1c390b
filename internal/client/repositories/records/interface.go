package records

import (
	"context"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
)

// Repository describes the operations the app needs on one collection.
type Repository interface {
	// GetAll returns every record in insertion order.
	GetAll(ctx context.Context) ([]models.Record, error)

	// Get returns a record by id or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Record, error)

	// Upsert inserts the record or replaces the stored one with the same id.
	Upsert(ctx context.Context, r models.Record) error

	// Delete removes a record; deleting an absent id returns common.ErrorNotFound.
	Delete(ctx context.Context, id string) error

	// Clear removes every record.
	Clear(ctx context.Context) error

	// BulkInsert stores records in order. Later duplicates overwrite earlier ones.
	BulkInsert(ctx context.Context, rs []models.Record) error

	// FindBy returns records whose indexed column equals value.
	FindBy(ctx context.Context, column, value string) ([]models.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
