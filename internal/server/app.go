// Package server wires the backup server together: Postgres repositories
// and migrations, the optional S3 blob store, the change feed and the gRPC
// endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/clientkeeper/internal/server/config"
	"github.com/dmitrijs2005/clientkeeper/internal/server/feed"
	"github.com/dmitrijs2005/clientkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clientkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/clientkeeper/internal/server/grpc"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	hub             *feed.Hub
	listener        *feed.PGListener
	userService     *services.UserService
	snapshotService *services.SnapshotService
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager(c.SnapshotTieBreak)
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var blobs blobstore.Store
	if c.S3Bucket != "" {
		s3, err := blobstore.NewS3Store(ctx, c)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
		blobs = s3
	} else {
		logger.Info(ctx, "no S3 bucket configured, payloads stay in the database")
	}

	hub := feed.NewHub(logger)
	app := &App{config: c, logger: logger, db: db, hub: hub}

	// In postgres mode the insert trigger notifies every instance, this one
	// included, so the service must not publish a second time.
	var publisher services.Publisher
	if c.FeedMode == config.FeedPostgres {
		app.listener = feed.NewPGListener(c.DatabaseDSN, hub, logger)
	} else {
		publisher = hub
	}

	app.userService = services.NewUserService(db, rm, c, nil, logger)
	app.snapshotService = services.NewSnapshotService(db, rm, blobs, publisher, nil, logger)

	return app, nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.snapshotService, app.hub)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

// Run serves until ctx is cancelled or the gRPC server fails, then closes
// the database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "feed_mode", app.config.FeedMode)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.listener.Run(ctx); err != nil {
				app.logger.Error(ctx, "feed listener stopped", "error", err)
			}
		}()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
