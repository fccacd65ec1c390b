package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
	"github.com/dmitrijs2005/clientkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/clientkeeper/internal/server/repositories/snapshots"
	"github.com/dmitrijs2005/clientkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Snapshots(db dbx.DBTX) snapshots.Repository
}
