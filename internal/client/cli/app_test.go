package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/config"
	"github.com/dmitrijs2005/clientkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type account struct {
	salt     []byte
	verifier []byte
	owner    string
}

// fakeRemote is an in-memory backup server: snapshots come from
// client.MemoryStore, accounts are kept in a map.
type fakeRemote struct {
	*client.MemoryStore

	mu       sync.Mutex
	down     bool
	accounts map[string]account
}

func newFakeRemote(clock clockwork.Clock) *fakeRemote {
	return &fakeRemote{MemoryStore: client.NewMemoryStore(clock), accounts: map[string]account{}}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
	f.MemoryStore.SetOffline(down)
}

func (f *fakeRemote) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *fakeRemote) Register(_ context.Context, username string, salt, verifier []byte) error {
	if f.isDown() {
		return client.ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[username]; ok {
		return client.ErrUserExists
	}
	f.accounts[username] = account{
		salt:     append([]byte(nil), salt...),
		verifier: append([]byte(nil), verifier...),
		owner:    "owner-" + username,
	}
	return nil
}

func (f *fakeRemote) GetSalt(_ context.Context, username string) ([]byte, error) {
	if f.isDown() {
		return nil, client.ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[username]
	if !ok {
		return nil, client.ErrUnauthorized
	}
	return acc.salt, nil
}

func (f *fakeRemote) Login(_ context.Context, username string, verifier []byte) (string, error) {
	if f.isDown() {
		return "", client.ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[username]
	if !ok || subtle.ConstantTimeCompare(acc.verifier, verifier) == 0 {
		return "", client.ErrUnauthorized
	}
	return acc.owner, nil
}

func (f *fakeRemote) Ping(context.Context) error {
	if f.isDown() {
		return client.ErrUnavailable
	}
	return nil
}

// deviceConn is one device's connection to fakeRemote. Like the gRPC
// client it carries credentials only after Login, and snapshot calls
// without them are refused.
type deviceConn struct {
	*fakeRemote

	mu     sync.Mutex
	owner  string
	logins int
}

func (c *deviceConn) Login(ctx context.Context, username string, verifier []byte) (string, error) {
	owner, err := c.fakeRemote.Login(ctx, username, verifier)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.owner = owner
	c.logins++
	c.mu.Unlock()
	return owner, nil
}

func (c *deviceConn) forget() {
	c.mu.Lock()
	c.owner = ""
	c.mu.Unlock()
}

func (c *deviceConn) loginCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

func (c *deviceConn) authorize(ownerID string) error {
	if c.isDown() {
		return client.ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == "" || c.owner != ownerID {
		return client.ErrUnauthorized
	}
	return nil
}

func (c *deviceConn) InsertSnapshot(ctx context.Context, ownerID string, n models.NewSnapshot) (models.SnapshotMeta, error) {
	if err := c.authorize(ownerID); err != nil {
		return models.SnapshotMeta{}, err
	}
	return c.MemoryStore.InsertSnapshot(ctx, ownerID, n)
}

func (c *deviceConn) GetLatestSnapshot(ctx context.Context, ownerID string) (*models.Snapshot, error) {
	if err := c.authorize(ownerID); err != nil {
		return nil, err
	}
	return c.MemoryStore.GetLatestSnapshot(ctx, ownerID)
}

func (c *deviceConn) ListSnapshots(ctx context.Context, ownerID string) ([]models.SnapshotMeta, error) {
	if err := c.authorize(ownerID); err != nil {
		return nil, err
	}
	return c.MemoryStore.ListSnapshots(ctx, ownerID)
}

func (c *deviceConn) ListSnapshotIDs(ctx context.Context, ownerID string) ([]string, error) {
	if err := c.authorize(ownerID); err != nil {
		return nil, err
	}
	return c.MemoryStore.ListSnapshotIDs(ctx, ownerID)
}

func (c *deviceConn) DeleteSnapshots(ctx context.Context, ownerID string, ids []string) error {
	if err := c.authorize(ownerID); err != nil {
		return err
	}
	return c.MemoryStore.DeleteSnapshots(ctx, ownerID, ids)
}

func (c *deviceConn) SubscribeToInserts(ctx context.Context, ownerID string, cb func(models.SnapshotMeta)) (func(), error) {
	if err := c.authorize(ownerID); err != nil {
		return nil, err
	}
	return c.MemoryStore.SubscribeToInserts(ctx, ownerID, cb)
}

type testDevice struct {
	app   *App
	out   *bytes.Buffer
	store *localstore.Store
	conn  *deviceConn
}

// newDevice assembles an App on a fresh in-memory database. in feeds
// confirmation prompts.
func newDevice(t *testing.T, remote *fakeRemote, clock clockwork.Clock, in string) *testDevice {
	t.Helper()
	st, err := localstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		ServerEndpointAddr:  "test:0",
		OnlineCheckInterval: time.Second,
		SyncDebounce:        3 * time.Second,
		SnapshotRetention:   3,
	}
	out := &bytes.Buffer{}
	conn := &deviceConn{fakeRemote: remote}
	a := assemble(cfg, st, conn, logging.NewDiscardLogger(), strings.NewReader(in), out, clock)
	a.resetTokens = conn.forget
	t.Cleanup(func() {
		a.engine.Close()
		remote.Wait()
		_ = st.Close()
	})
	return &testDevice{app: a, out: out, store: st, conn: conn}
}

// setInput replaces what confirmation prompts read.
func (d *testDevice) setInput(in string) {
	d.app.reader = bufio.NewReader(strings.NewReader(in))
}

// stubInputs makes the credential prompts return fixed values. The password
// is copied on every call since callers wipe it.
func stubInputs(t *testing.T, username, password string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

func fixedClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}
