// Package users declares the account repository of the backup server.
package users

import (
	"context"

	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts the user and fills its ID and CreatedAt. A taken
	// username yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetUserByLogin returns common.ErrorNotFound for an unknown username.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
