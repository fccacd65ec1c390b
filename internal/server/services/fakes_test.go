package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/clientkeeper/internal/server/repositories/refreshtokens"
	snapshotsrepo "github.com/dmitrijs2005/clientkeeper/internal/server/repositories/snapshots"
	usersrepo "github.com/dmitrijs2005/clientkeeper/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error

	delErr error

	createErr     error
	createdFor    string
	createdExpiry time.Time

	purgeErr    error
	purgeBefore time.Time
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	f.createdFor = userID
	f.createdExpiry = expiresAt
	return f.createErr
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	return f.delErr
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.purgeBefore = now
	return 0, f.purgeErr
}

// memSnapshots keeps snapshot rows in memory with the ordering of the
// Postgres repository under the seq tie-break.
type memSnapshots struct {
	mu        sync.Mutex
	rows      []models.Snapshot
	seq       int64
	now       func() time.Time
	insertErr error
}

func (m *memSnapshots) Insert(ctx context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, r := range m.rows {
		if r.ID == s.ID {
			return common.ErrorConflict
		}
	}
	m.seq++
	s.Seq = m.seq
	s.CreatedAt = m.now()
	row := *s
	row.Payload = append([]byte(nil), s.Payload...)
	m.rows = append(m.rows, row)
	return nil
}

func (m *memSnapshots) sorted(ownerID string) []models.Snapshot {
	var out []models.Snapshot
	for _, r := range m.rows {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func (m *memSnapshots) Latest(ctx context.Context, ownerID string) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sorted(ownerID)
	if len(rows) == 0 {
		return nil, common.ErrorNotFound
	}
	s := rows[0]
	return &s, nil
}

func (m *memSnapshots) List(ctx context.Context, ownerID string, limit int) ([]models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sorted(ownerID)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Payload = nil
		rows[i].Nonce = nil
	}
	return rows, nil
}

func (m *memSnapshots) Delete(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	keys := []string{}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.OwnerID == ownerID && want[r.ID] {
			keys = append(keys, r.StorageKey)
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return keys, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	s *memSnapshots
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Snapshots(db dbx.DBTX) snapshotsrepo.Repository         { return m.s }

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.objects, key)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SnapshotEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev models.SnapshotEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}
