package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Channel is the NOTIFY channel written by the snapshots insert trigger.
const Channel = "snapshot_inserted"

// notifyConn is the part of *pgx.Conn the listener needs.
type notifyConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

var connect = func(ctx context.Context, dsn string) (notifyConn, error) {
	return pgx.Connect(ctx, dsn)
}

// PGListener relays Postgres notifications into a Hub, so inserts made
// through any server instance reach subscribers of this one.
type PGListener struct {
	dsn     string
	hub     *Hub
	logger  logging.Logger
	backoff func() retry.Backoff
}

func NewPGListener(dsn string, hub *Hub, logger logging.Logger) *PGListener {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &PGListener{
		dsn:    dsn,
		hub:    hub,
		logger: logger.With("module", "feed_listener"),
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))
		},
	}
}

// Run listens until ctx is done, reconnecting with exponential backoff
// after connection failures.
func (l *PGListener) Run(ctx context.Context) error {
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn(ctx, "feed listener disconnected", "error", err)
		return retry.RetryableError(err)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info(ctx, "feed listener connected", "channel", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		ev, err := decodeEvent(n.Payload)
		if err != nil {
			l.logger.Warn(ctx, "bad notification payload", "error", err)
			continue
		}
		l.hub.Publish(ctx, ev)
	}
}

func decodeEvent(payload string) (models.SnapshotEvent, error) {
	var ev models.SnapshotEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.SnapshotEvent{}, err
	}
	if ev.ID == "" || ev.OwnerID == "" {
		return models.SnapshotEvent{}, errors.New("event without id or owner")
	}
	return ev, nil
}
