package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/session"
	"github.com/dmitrijs2005/clientkeeper/internal/cryptox"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func insertMeta(t *testing.T, db *sql.DB, k string, v []byte) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO metadata(key,value) VALUES(?,?)`, k, v)
	require.NoError(t, err)
}

func getMeta(t *testing.T, db *sql.DB, k string) []byte {
	t.Helper()
	var v []byte
	err := db.QueryRow(`SELECT value FROM metadata WHERE key=?`, k).Scan(&v)
	require.NoError(t, err)
	return v
}

func seedOffline(t *testing.T, db *sql.DB, user, password, owner string) []byte {
	t.Helper()
	salt := []byte("salty")
	mk := cryptox.DeriveMasterKey([]byte(password), salt)
	insertMeta(t, db, "username", []byte(user))
	insertMeta(t, db, "salt", salt)
	insertMeta(t, db, "verifier", cryptox.MakeVerifier(mk))
	if owner != "" {
		insertMeta(t, db, "owner_id", []byte(owner))
	}
	return mk
}

// ---- fakes ----

// fakeAuth implements client.Auth for unit tests of AuthService.
type fakeAuth struct {
	RegisterErr error

	GetSaltRet  []byte
	GetSaltErr  error
	GetSaltHook func()

	LoginOwner string
	LoginErr   error

	PingErr error

	LastRegisterUser string
	LastRegisterSalt []byte
	LastRegisterKey  []byte

	LastGetSaltUser string

	LastLoginUser string
	LastLoginKey  []byte
	Logins        int
}

func (f *fakeAuth) Register(ctx context.Context, username string, salt []byte, key []byte) error {
	f.LastRegisterUser = username
	f.LastRegisterSalt = append([]byte(nil), salt...)
	f.LastRegisterKey = append([]byte(nil), key...)
	return f.RegisterErr
}

func (f *fakeAuth) GetSalt(ctx context.Context, username string) ([]byte, error) {
	f.LastGetSaltUser = username
	if f.GetSaltHook != nil {
		f.GetSaltHook()
	}
	return append([]byte(nil), f.GetSaltRet...), f.GetSaltErr
}

func (f *fakeAuth) Login(ctx context.Context, username string, key []byte) (string, error) {
	f.LastLoginUser = username
	f.LastLoginKey = append([]byte(nil), key...)
	f.Logins++
	return f.LoginOwner, f.LoginErr
}

func (f *fakeAuth) Ping(ctx context.Context) error { return f.PingErr }

func newSvc(t *testing.T, fc *fakeAuth) (AuthService, *sql.DB, *session.Manager) {
	t.Helper()
	db := setupDB(t)
	m := session.NewManager()
	return NewAuthService(fc, db, m), db, m
}

// ---- TESTS ----

func TestOfflineLogin_NoLocalData(t *testing.T) {
	svc, _, m := newSvc(t, &fakeAuth{})

	_, err := svc.OfflineLogin(context.Background(), "user@example.com", []byte("pass"))
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
	_, ok := m.Current()
	require.False(t, ok)
}

func TestOfflineLogin_UsernameMismatch_Unauthorized(t *testing.T) {
	svc, db, _ := newSvc(t, &fakeAuth{})
	seedOffline(t, db, "other", "p", "owner-1")

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("p"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestOfflineLogin_WrongPassword_Unauthorized(t *testing.T) {
	svc, db, m := newSvc(t, &fakeAuth{})
	seedOffline(t, db, "user", "correct", "owner-1")

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("wrong"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.Empty(t, m.OwnerID())
}

func TestOfflineLogin_MissingOwnerNeedsOnlineLogin(t *testing.T) {
	svc, db, _ := newSvc(t, &fakeAuth{})
	seedOffline(t, db, "user", "pass", "")

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}

func TestOfflineLogin_Success_StartsSession(t *testing.T) {
	svc, db, m := newSvc(t, &fakeAuth{})
	mk := seedOffline(t, db, "user", "pass", "owner-1")

	got, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.Equal(t, mk, got.Key)
	require.Equal(t, "owner-1", got.OwnerID)

	cur, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, "owner-1", cur.OwnerID)
	require.Equal(t, "user", cur.Username)
}

func TestOnlineLogin_GetSaltError_Wrapped(t *testing.T) {
	svc, _, _ := newSvc(t, &fakeAuth{GetSaltErr: errors.New("network down")})

	_, err := svc.OnlineLogin(context.Background(), "u", []byte("p"))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "get salt error:"))
}

func TestOnlineLogin_LoginError_Wrapped(t *testing.T) {
	svc, _, m := newSvc(t, &fakeAuth{GetSaltRet: []byte("s"), LoginErr: client.ErrUnauthorized})

	_, err := svc.OnlineLogin(context.Background(), "u", []byte("p"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.True(t, strings.HasPrefix(err.Error(), "login error:"))
	require.Empty(t, m.OwnerID())
}

func TestOnlineLogin_Success_SavesOfflineDataAndStartsSession(t *testing.T) {
	fc := &fakeAuth{GetSaltRet: []byte("salt"), LoginOwner: "owner-42"}
	svc, db, m := newSvc(t, fc)

	got, err := svc.OnlineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)

	require.Equal(t, []byte("user"), getMeta(t, db, "username"))
	require.Equal(t, []byte("salt"), getMeta(t, db, "salt"))
	require.Equal(t, []byte("owner-42"), getMeta(t, db, "owner_id"))
	savedVerifier := getMeta(t, db, "verifier")
	require.NotEmpty(t, savedVerifier)

	expected := cryptox.DeriveMasterKey([]byte("pass"), []byte("salt"))
	require.Equal(t, expected, got.Key)
	require.Equal(t, "owner-42", got.OwnerID)

	require.Equal(t, "user", fc.LastGetSaltUser)
	require.Equal(t, "user", fc.LastLoginUser)
	require.Equal(t, savedVerifier, fc.LastLoginKey)

	require.Equal(t, "owner-42", m.OwnerID())

	// the cached data is enough for the next offline login
	svc.Logout(context.Background())
	require.Empty(t, m.OwnerID())
	again, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.Equal(t, "owner-42", again.OwnerID)
}

func TestRegister_DelegatesToClient(t *testing.T) {
	fc := &fakeAuth{}
	svc, _, _ := newSvc(t, fc)

	err := svc.Register(context.Background(), "u", []byte("p"))
	require.NoError(t, err)

	require.Equal(t, "u", fc.LastRegisterUser)
	require.Len(t, fc.LastRegisterSalt, 32)
	require.Equal(t, cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte("p"), fc.LastRegisterSalt)), fc.LastRegisterKey)
}

func TestRegister_ErrorFromClient(t *testing.T) {
	svc, _, _ := newSvc(t, &fakeAuth{RegisterErr: client.ErrUserExists})
	err := svc.Register(context.Background(), "u", []byte("p"))
	require.ErrorIs(t, err, client.ErrUserExists)
}

func TestPing_ErrorPropagates(t *testing.T) {
	fc := &fakeAuth{}
	svc, _, _ := newSvc(t, fc)
	require.NoError(t, svc.Ping(context.Background()))

	fc.PingErr = client.ErrUnavailable
	require.ErrorIs(t, svc.Ping(context.Background()), client.ErrUnavailable)
}

func TestClearOfflineData_KeepsSyncFlags(t *testing.T) {
	svc, db, _ := newSvc(t, &fakeAuth{})
	seedOffline(t, db, "user", "pass", "owner-1")
	insertMeta(t, db, "sync_pending", []byte("true"))

	require.NoError(t, svc.ClearOfflineData(context.Background()))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM metadata`).Scan(&n))
	require.Equal(t, 1, n)
	require.Equal(t, []byte("true"), getMeta(t, db, "sync_pending"))

	_, err := svc.OfflineLogin(context.Background(), "user", []byte("pass"))
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}

func TestOnlineLogin_LoadingWhileWaitingForServer(t *testing.T) {
	fc := &fakeAuth{GetSaltRet: []byte("salt"), LoginOwner: "owner-1"}
	svc, _, m := newSvc(t, fc)

	var during bool
	fc.GetSaltHook = func() { during = m.Loading() }

	_, err := svc.OnlineLogin(context.Background(), "user", []byte("pass"))
	require.NoError(t, err)
	require.True(t, during)
	require.False(t, m.Loading())

	svc.Logout(context.Background())
	fc.LoginErr = client.ErrUnavailable
	_, err = svc.OnlineLogin(context.Background(), "user", []byte("pass"))
	require.ErrorIs(t, err, client.ErrUnavailable)
	require.False(t, m.Loading())
}

func TestResumeOnline_AfterOfflineLogin(t *testing.T) {
	fc := &fakeAuth{LoginOwner: "owner-1"}
	svc, db, _ := newSvc(t, fc)
	mk := seedOffline(t, db, "user", "pass", "owner-1")
	ctx := context.Background()

	_, err := svc.OfflineLogin(ctx, "user", []byte("pass"))
	require.NoError(t, err)

	resumed, err := svc.ResumeOnline(ctx)
	require.NoError(t, err)
	require.True(t, resumed)
	require.Equal(t, "user", fc.LastLoginUser)
	require.Equal(t, cryptox.MakeVerifier(mk), fc.LastLoginKey)

	// already signed in, nothing to do
	resumed, err = svc.ResumeOnline(ctx)
	require.NoError(t, err)
	require.False(t, resumed)
	require.Equal(t, 1, fc.Logins)
}

func TestResumeOnline_SkipsOnlineAndSignedOutSessions(t *testing.T) {
	fc := &fakeAuth{GetSaltRet: []byte("salt"), LoginOwner: "owner-1"}
	svc, _, _ := newSvc(t, fc)
	ctx := context.Background()

	resumed, err := svc.ResumeOnline(ctx)
	require.NoError(t, err)
	require.False(t, resumed)

	_, err = svc.OnlineLogin(ctx, "user", []byte("pass"))
	require.NoError(t, err)
	resumed, err = svc.ResumeOnline(ctx)
	require.NoError(t, err)
	require.False(t, resumed)
	require.Equal(t, 1, fc.Logins)
}

func TestResumeOnline_Failures(t *testing.T) {
	ctx := context.Background()

	fc := &fakeAuth{LoginErr: client.ErrUnauthorized}
	svc, db, _ := newSvc(t, fc)
	seedOffline(t, db, "user", "pass", "owner-1")
	_, err := svc.OfflineLogin(ctx, "user", []byte("pass"))
	require.NoError(t, err)

	resumed, err := svc.ResumeOnline(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.False(t, resumed)

	// a different account behind the same username is refused
	fc.LoginErr = nil
	fc.LoginOwner = "owner-2"
	resumed, err = svc.ResumeOnline(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.False(t, resumed)

	// still offline, so a later attempt retries
	fc.LoginOwner = "owner-1"
	resumed, err = svc.ResumeOnline(ctx)
	require.NoError(t, err)
	require.True(t, resumed)
}
