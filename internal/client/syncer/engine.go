// Package syncer keeps the local store and the remote snapshot store in step.
//
// Every local mutation calls TriggerSync, which marks the durable pending flag
// and (re)starts a debounce timer. When the timer fires the whole dataset is
// sealed and pushed as a new snapshot. Snapshots written by other devices
// arrive through the change feed and replace local data wholesale: the
// newest snapshot wins, there is no merge.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/client/session"
	"github.com/dmitrijs2005/clientkeeper/internal/client/validate"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/cryptox"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultDebounce  = 3000 * time.Millisecond
	DefaultRetention = 3

	// how many of our own snapshot ids are remembered for echo suppression
	ownIDsKept = 8
)

const (
	otelScope      = "clientkeeper/syncer"
	spanPush       = "sync.push"
	spanPull       = "sync.pull"
	metricPushes   = "clientkeeper.sync.pushes"
	metricPulls    = "clientkeeper.sync.pulls"
	metricFailures = "clientkeeper.sync.failures"
	metricEchoes   = "clientkeeper.sync.echoes_suppressed"
	metricPruned   = "clientkeeper.sync.pruned"
	msgPushSkipped = "push skipped: restore in progress"
)

// LocalStore is the part of the on-device store the engine needs.
type LocalStore interface {
	AllClients(ctx context.Context) ([]models.Record, error)
	AllReminders(ctx context.Context) ([]models.Record, error)
	ReplaceAll(ctx context.Context, clients, reminders []models.Record) error
	SyncPending(ctx context.Context) (bool, error)
	SetSyncPending(ctx context.Context, pending bool) error
	LastRestoredOwner(ctx context.Context) (string, error)
	SetLastRestoredOwner(ctx context.Context, ownerID string) error
	SetLastBackupDate(ctx context.Context, ts string) error
}

// IdentitySource supplies the signed-in owner.
type IdentitySource interface {
	Current() (session.Identity, bool)
	Loading() bool
}

type Options struct {
	Debounce  time.Duration
	Retention int
	Clock     clockwork.Clock
	Notifier  Notifier
	Logger    logging.Logger
}

type Engine struct {
	local     LocalStore
	remote    client.BackupStore
	identity  IdentitySource
	validator *validate.Validator
	notifier  Notifier
	logger    logging.Logger
	clock     clockwork.Clock
	debounce  time.Duration
	retention int

	// opMu serialises push and pull bodies.
	opMu sync.Mutex

	// flagMu orders writes of the durable pending flag against generation.
	flagMu     sync.Mutex
	generation uint64

	mu           sync.Mutex
	state        State
	restoring    int
	restoreSeq   uint64
	online       bool
	timer        clockwork.Timer
	timerSeq     uint64
	ownIDs       []string
	handledOwner string
	feedOwner    string
	unsubscribe  func()
	lastErr      error
	lastPush     time.Time
	lastPull     time.Time

	tracer      trace.Tracer
	cntPushes   metric.Int64Counter
	cntPulls    metric.Int64Counter
	cntFailures metric.Int64Counter
	cntEchoes   metric.Int64Counter
	cntPruned   metric.Int64Counter
}

func New(local LocalStore, remote client.BackupStore, identity IdentitySource, opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	logger := opts.Logger.With("module", "syncer")

	meter := otel.Meter(otelScope)
	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error(context.Background(), "creating counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		local:     local,
		remote:    remote,
		identity:  identity,
		validator: validate.New(opts.Logger),
		notifier:  opts.Notifier,
		logger:    logger,
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		retention: opts.Retention,

		tracer:      otel.Tracer(otelScope),
		cntPushes:   mustCounter(metricPushes, "Snapshots pushed"),
		cntPulls:    mustCounter(metricPulls, "Snapshots restored"),
		cntFailures: mustCounter(metricFailures, "Failed pushes and pulls"),
		cntEchoes:   mustCounter(metricEchoes, "Feed events for our own snapshots"),
		cntPruned:   mustCounter(metricPruned, "Snapshots deleted by retention"),
	}
}

// TriggerSync records that local data changed. Without an identity or while
// offline it only sets the pending flag. Otherwise it restarts the debounce
// timer; every call pushes the deadline out again, there is no upper bound.
func (e *Engine) TriggerSync(ctx context.Context) {
	e.markPending(ctx)

	if _, ok := e.identity.Current(); !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online {
		return
	}

	e.stopTimerLocked()
	e.timerSeq++
	seq := e.timerSeq
	e.timer = e.clock.AfterFunc(e.debounce, func() { e.debounceFired(seq) })
	if e.state == Idle {
		e.state = PendingDebounce
	}
}

func (e *Engine) debounceFired(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.timer == nil {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()

	e.BackupToCloud(context.Background(), true)
}

// BackupToCloud pushes the whole local dataset as a new snapshot. It returns
// false on any failure and leaves the pending flag set so a later trigger,
// login or reconnect retries. A push requested while a restore is running
// or waiting to run is skipped.
func (e *Engine) BackupToCloud(ctx context.Context, silent bool) bool {
	ctx = context.WithoutCancel(ctx)

	id, ok := e.identity.Current()
	if !ok {
		e.markPending(ctx)
		return false
	}

	e.mu.Lock()
	restoring, seen := e.restoring > 0, e.restoreSeq
	e.mu.Unlock()
	if restoring {
		e.skipPush(ctx)
		return false
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	// a restore that started while we waited for the lock wins
	e.mu.Lock()
	if e.restoring > 0 || e.restoreSeq != seen {
		e.mu.Unlock()
		e.skipPush(ctx)
		return false
	}
	e.state = Pushing
	e.mu.Unlock()
	defer e.settle()
	gen := e.currentGeneration()

	ctx, span := e.tracer.Start(ctx, spanPush)
	defer span.End()

	meta, err := e.push(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.markPending(ctx)
		e.fail(ctx, "backup failed", err, !silent)
		return false
	}

	span.SetAttributes(
		attribute.String("snapshot.id", meta.ID),
		attribute.Int("snapshot.clients", meta.ClientsCount),
		attribute.Int("snapshot.reminders", meta.RemindersCount),
	)
	e.cntPushes.Add(ctx, 1)
	e.clearPending(ctx, gen)

	e.mu.Lock()
	e.lastPush = e.clock.Now()
	e.lastErr = nil
	e.mu.Unlock()

	e.prune(ctx, id.OwnerID)

	e.logger.Info(ctx, "backup pushed", "snapshot", meta.ID, "clients", meta.ClientsCount, "reminders", meta.RemindersCount)
	if !silent {
		e.notifier.Success(ctx, fmt.Sprintf("Backed up %d clients and %d reminders", meta.ClientsCount, meta.RemindersCount))
	}
	return true
}

func (e *Engine) skipPush(ctx context.Context) {
	e.markPending(ctx)
	e.logger.Debug(ctx, msgPushSkipped)
}

func (e *Engine) push(ctx context.Context, id session.Identity) (meta models.SnapshotMeta, err error) {
	defer recoverInto(&err)

	clients, err := e.local.AllClients(ctx)
	if err != nil {
		return meta, fmt.Errorf("read clients: %w", err)
	}
	reminders, err := e.local.AllReminders(ctx)
	if err != nil {
		return meta, fmt.Errorf("read reminders: %w", err)
	}

	exportedAt := common.FormatTimestamp(e.clock.Now())
	payload := models.Payload{
		SchemaVersion: models.SchemaVersion,
		ExportedAt:    exportedAt,
		Clients:       clients,
		Reminders:     reminders,
	}

	data, nonce, err := seal(payload, id.Key)
	if err != nil {
		return meta, fmt.Errorf("seal payload: %w", err)
	}

	// recorded before the insert so the feed event can never beat it
	snapshotID := uuid.NewString()
	e.rememberOwn(snapshotID)

	meta, err = e.remote.InsertSnapshot(ctx, id.OwnerID, models.NewSnapshot{
		ID:             snapshotID,
		ClientsCount:   len(clients),
		RemindersCount: len(reminders),
		Payload:        data,
		Nonce:          nonce,
	})
	if err != nil {
		return meta, fmt.Errorf("insert snapshot: %w", err)
	}
	if meta.ID != "" && meta.ID != snapshotID {
		e.rememberOwn(meta.ID)
	}

	if err := e.local.SetLastBackupDate(ctx, exportedAt); err != nil {
		e.logger.Warn(ctx, "failed to record backup date", "error", err)
	}
	return meta, nil
}

// prune keeps the newest snapshots and deletes the rest. Errors are only
// logged.
func (e *Engine) prune(ctx context.Context, ownerID string) {
	err := func() (err error) {
		defer recoverInto(&err)

		ids, err := e.remote.ListSnapshotIDs(ctx, ownerID)
		if err != nil {
			return err
		}
		if len(ids) <= e.retention {
			return nil
		}
		stale := ids[e.retention:]
		if err := e.remote.DeleteSnapshots(ctx, ownerID, stale); err != nil {
			return err
		}
		e.cntPruned.Add(ctx, int64(len(stale)))
		e.logger.Debug(ctx, "pruned snapshots", "count", len(stale))
		return nil
	}()
	if err != nil {
		e.logger.Warn(ctx, "retention pruning failed", "error", err)
	}
}

// RestoreFromCloud replaces local clients and reminders with the newest
// snapshot. It returns false when there is nothing to restore or anything
// fails; local data is only touched after the snapshot validated.
func (e *Engine) RestoreFromCloud(ctx context.Context, silent bool) bool {
	ctx = context.WithoutCancel(ctx)

	id, ok := e.identity.Current()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.restoring++
	e.restoreSeq++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.restoring--
		e.mu.Unlock()
	}()

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.setState(Pulling)
	defer e.settle()
	gen := e.currentGeneration()

	ctx, span := e.tracer.Start(ctx, spanPull)
	defer span.End()

	backup, err := e.pull(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		span.SetAttributes(attribute.Bool("snapshot.found", false))
		if err := e.local.SetLastRestoredOwner(ctx, id.OwnerID); err != nil {
			e.logger.Warn(ctx, "failed to record restored owner", "error", err)
		}
		e.logger.Info(ctx, "no backup to restore", "owner", id.OwnerID)
		return false
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// pull failures are always shown
		e.fail(ctx, "restore failed", err, true)
		return false
	}

	if err := e.local.SetLastRestoredOwner(ctx, id.OwnerID); err != nil {
		e.logger.Warn(ctx, "failed to record restored owner", "error", err)
	}
	e.clearPending(ctx, gen)
	e.cntPulls.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int("snapshot.clients", len(backup.Clients)),
		attribute.Int("snapshot.reminders", len(backup.Reminders)),
	)

	e.mu.Lock()
	e.lastPull = e.clock.Now()
	e.lastErr = nil
	e.mu.Unlock()

	e.logger.Info(ctx, "backup restored", "clients", len(backup.Clients), "reminders", len(backup.Reminders))
	if !silent {
		e.notifier.Success(ctx, fmt.Sprintf("Restored %d clients and %d reminders", len(backup.Clients), len(backup.Reminders)))
	}
	return true
}

func (e *Engine) pull(ctx context.Context, id session.Identity) (backup *models.Backup, err error) {
	defer recoverInto(&err)

	snap, err := e.remote.GetLatestSnapshot(ctx, id.OwnerID)
	if err != nil {
		return nil, err
	}

	data, err := open(snap, id.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", validate.ErrInvalidBackup, snap.ID, err)
	}
	backup, err = e.validator.Bytes(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := e.local.ReplaceAll(ctx, backup.Clients, backup.Reminders); err != nil {
		return nil, fmt.Errorf("replace local data: %w", err)
	}
	return backup, nil
}

// OnIdentityChanged reacts to login and logout. The first call for an owner
// in this process restores when this device never restored for that owner,
// or pushes pending offline edits. Later calls for the same owner do nothing.
func (e *Engine) OnIdentityChanged(ctx context.Context) {
	if e.identity.Loading() {
		return
	}
	id, ok := e.identity.Current()

	e.mu.Lock()
	if !ok {
		e.stopTimerLocked()
		e.handledOwner = ""
		e.feedOwner = ""
		e.ownIDs = nil
		unsubscribe := e.unsubscribe
		e.unsubscribe = nil
		if e.state == PendingDebounce {
			e.state = Idle
		}
		e.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	if e.handledOwner == id.OwnerID {
		e.mu.Unlock()
		return
	}
	e.handledOwner = id.OwnerID
	online := e.online
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.subscribe(ctx, id.OwnerID)

	restored, err := e.local.LastRestoredOwner(ctx)
	if err != nil {
		e.logger.Warn(ctx, "failed to read restored owner", "error", err)
	}
	if restored != id.OwnerID {
		e.RestoreFromCloud(ctx, false)
		return
	}

	if online && e.pending(ctx) {
		e.BackupToCloud(ctx, true)
	}
}

func (e *Engine) subscribe(ctx context.Context, ownerID string) {
	e.mu.Lock()
	e.feedOwner = ownerID
	e.mu.Unlock()

	unsubscribe, err := e.remote.SubscribeToInserts(context.WithoutCancel(ctx), ownerID, e.feedHandler(ownerID))
	if err != nil {
		e.logger.Warn(ctx, "change feed subscription failed", "error", err)
		return
	}

	e.mu.Lock()
	if e.feedOwner != ownerID {
		// logged out or switched while subscribing
		e.mu.Unlock()
		unsubscribe()
		return
	}
	e.unsubscribe = unsubscribe
	e.mu.Unlock()
}

func (e *Engine) feedHandler(ownerID string) func(models.SnapshotMeta) {
	return func(meta models.SnapshotMeta) {
		ctx := context.Background()

		e.mu.Lock()
		if e.feedOwner != ownerID {
			e.mu.Unlock()
			return
		}
		own := e.isOwnLocked(meta.ID)
		e.mu.Unlock()

		if own {
			e.cntEchoes.Add(ctx, 1)
			e.logger.Debug(ctx, "ignoring own snapshot", "snapshot", meta.ID)
			return
		}

		e.logger.Info(ctx, "newer snapshot from another device", "snapshot", meta.ID)
		e.RestoreFromCloud(ctx, true)
	}
}

// Resubscribe reopens the change feed for the signed-in owner. Callers use
// it after the remote credentials changed under an existing session.
func (e *Engine) Resubscribe(ctx context.Context) {
	id, ok := e.identity.Current()
	if !ok {
		return
	}

	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.subscribe(ctx, id.OwnerID)
}

// SetOnline records connectivity. Coming back online with pending changes
// pushes right away.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if was || !online {
		return
	}
	if _, ok := e.identity.Current(); !ok {
		return
	}
	if e.pending(ctx) {
		e.BackupToCloud(ctx, true)
	}
}

func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Status(ctx context.Context) Status {
	pending := e.pending(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		State:    e.state,
		Online:   e.online,
		Pending:  pending,
		LastPush: e.lastPush,
		LastPull: e.lastPull,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Close stops the debounce timer and the change feed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopTimerLocked()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.feedOwner = ""
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// settle leaves Pushing/Pulling for whatever is next.
func (e *Engine) settle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.state = PendingDebounce
	} else {
		e.state = Idle
	}
}

func (e *Engine) fail(ctx context.Context, msg string, err error, notify bool) {
	e.cntFailures.Add(ctx, 1)

	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()

	e.logger.Warn(ctx, msg, "error", err)
	if notify {
		e.notifier.Failure(ctx, msg, err)
	}
}

func (e *Engine) rememberOwn(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ownIDs = append(e.ownIDs, id)
	if len(e.ownIDs) > ownIDsKept {
		e.ownIDs = e.ownIDs[len(e.ownIDs)-ownIDsKept:]
	}
}

func (e *Engine) isOwnLocked(id string) bool {
	for _, own := range e.ownIDs {
		if own == id {
			return true
		}
	}
	return false
}

func (e *Engine) currentGeneration() uint64 {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	return e.generation
}

func (e *Engine) markPending(ctx context.Context) {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	e.generation++
	if err := e.local.SetSyncPending(ctx, true); err != nil {
		e.logger.Error(ctx, "failed to persist pending flag", "error", err)
	}
}

// clearPending clears the flag unless something changed since gen was read.
func (e *Engine) clearPending(ctx context.Context, gen uint64) {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	if e.generation != gen {
		return
	}
	if err := e.local.SetSyncPending(ctx, false); err != nil {
		e.logger.Error(ctx, "failed to clear pending flag", "error", err)
	}
}

func (e *Engine) pending(ctx context.Context) bool {
	p, err := e.local.SyncPending(ctx)
	if err != nil {
		e.logger.Warn(ctx, "failed to read pending flag", "error", err)
	}
	return p
}

func seal(p models.Payload, key []byte) ([]byte, []byte, error) {
	if len(key) == 0 {
		data, err := json.Marshal(p)
		return data, nil, err
	}
	return cryptox.SealJSON(p, key)
}

func open(s *models.Snapshot, key []byte) ([]byte, error) {
	if len(s.Nonce) == 0 {
		return s.Payload, nil
	}
	return cryptox.Open(s.Payload, s.Nonce, key)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
