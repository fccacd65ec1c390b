// Package services contains application services for the ClientKeeper client.
// This file defines the authentication service: online/offline login, register,
// logout, liveness check, and housekeeping of local (offline) auth metadata.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/clientkeeper/internal/client/session"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/cryptox"
	"github.com/dmitrijs2005/clientkeeper/internal/dbx"
)

// Metadata keys of the cached offline credentials.
const (
	metaUsername = "username"
	metaSalt     = "salt"
	metaVerifier = "verifier"
	metaOwnerID  = "owner_id"
)

// Sessions receives the identity produced by a successful login.
type Sessions interface {
	Current() (session.Identity, bool)
	BeginLoading()
	EndLoading()
	Login(ctx context.Context, id session.Identity)
	Logout(ctx context.Context)
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server, persist offline auth data
//     and start a session.
//   - OfflineLogin: verify credentials against locally cached data and start
//     a session with the cached owner id.
//   - Register: create a new user on the server.
//   - ResumeOnline: sign a session that began offline in to the server with
//     the key it already holds.
//   - Logout: end the session; cached credentials stay for the next offline login.
//   - Ping: check server liveness.
//   - ClearOfflineData: wipe locally cached auth metadata.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) (session.Identity, error)
	OnlineLogin(ctx context.Context, username string, password []byte) (session.Identity, error)
	Register(ctx context.Context, username string, password []byte) error
	ResumeOnline(ctx context.Context) (bool, error)
	Logout(ctx context.Context)
	Ping(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

// authService is the concrete AuthService backed by the remote Auth API
// and a local SQL database for offline metadata.
type authService struct {
	client   client.Auth
	db       *sql.DB
	sessions Sessions

	mu sync.Mutex
	// offline is set while the session has no server credentials.
	offline bool
}

// NewAuthService constructs an AuthService bound to the given API client, DB
// and session manager.
func NewAuthService(client client.Auth, db *sql.DB, sessions Sessions) AuthService {
	return &authService{client: client, db: db, sessions: sessions}
}

func (a *authService) getMetadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

// OfflineLogin derives a master key from (password,salt) stored locally
// and verifies it against the locally cached verifier. If nothing is cached
// it returns client.ErrLocalDataNotAvailable; if verification fails,
// client.ErrUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (session.Identity, error) {
	metadataRepo := a.getMetadataRepo(a.db)

	cached, err := metadataRepo.List(ctx)
	if err != nil {
		return session.Identity{}, fmt.Errorf("read offline data: %w", err)
	}

	savedUsername, ok := cached[metaUsername]
	if !ok {
		return session.Identity{}, client.ErrLocalDataNotAvailable
	}
	if string(savedUsername) != username {
		return session.Identity{}, client.ErrUnauthorized
	}

	savedSalt, okSalt := cached[metaSalt]
	savedVerifier, okVerifier := cached[metaVerifier]
	ownerID, okOwner := cached[metaOwnerID]
	if !okSalt || !okVerifier || !okOwner || len(ownerID) == 0 {
		return session.Identity{}, client.ErrLocalDataNotAvailable
	}

	masterKeyCandidate := cryptox.DeriveMasterKey(password, savedSalt)
	verifierCandidate := cryptox.MakeVerifier(masterKeyCandidate)

	if subtle.ConstantTimeCompare(savedVerifier, verifierCandidate) == 0 {
		return session.Identity{}, client.ErrUnauthorized
	}

	id := session.Identity{OwnerID: string(ownerID), Username: username, Key: masterKeyCandidate}
	a.setOffline(true)
	a.sessions.Login(ctx, id)
	return id, nil
}

// OnlineLogin authenticates against the server, saves offline metadata
// (username, salt, verifier, owner id) and starts a session.
func (a *authService) OnlineLogin(ctx context.Context, userName string, password []byte) (id session.Identity, err error) {
	a.sessions.BeginLoading()
	defer func() {
		if err != nil {
			a.sessions.EndLoading()
		}
	}()

	salt, err := a.client.GetSalt(ctx, userName)
	if err != nil {
		return session.Identity{}, fmt.Errorf("get salt error: %w", err)
	}

	masterKeyCandidate := cryptox.DeriveMasterKey(password, salt)
	verifierCandidate := cryptox.MakeVerifier(masterKeyCandidate)

	ownerID, err := a.client.Login(ctx, userName, verifierCandidate)
	if err != nil {
		return session.Identity{}, fmt.Errorf("login error: %w", err)
	}

	if err := a.saveOfflineData(ctx, userName, salt, verifierCandidate, ownerID); err != nil {
		return session.Identity{}, fmt.Errorf("offline data saving error: %w", err)
	}

	id = session.Identity{OwnerID: ownerID, Username: userName, Key: masterKeyCandidate}
	a.setOffline(false)
	a.sessions.Login(ctx, id)
	return id, nil
}

// ResumeOnline logs the current session in to the server when it started
// with an offline login, using the verifier of the key it already holds.
// It reports whether a login happened. The server must agree on the owner.
func (a *authService) ResumeOnline(ctx context.Context) (bool, error) {
	a.mu.Lock()
	offline := a.offline
	a.mu.Unlock()
	if !offline {
		return false, nil
	}

	id, ok := a.sessions.Current()
	if !ok {
		return false, nil
	}

	ownerID, err := a.client.Login(ctx, id.Username, cryptox.MakeVerifier(id.Key))
	if err != nil {
		return false, fmt.Errorf("login error: %w", err)
	}
	if ownerID != id.OwnerID {
		return false, fmt.Errorf("server owner %s differs from cached %s: %w", ownerID, id.OwnerID, client.ErrUnauthorized)
	}

	a.setOffline(false)
	return true, nil
}

func (a *authService) setOffline(v bool) {
	a.mu.Lock()
	a.offline = v
	a.mu.Unlock()
}

// saveOfflineData persists the auth metadata required for offline login in a
// single transaction.
func (a *authService) saveOfflineData(ctx context.Context, userName string, salt, verifier []byte, ownerID string) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		metadataRepo := a.getMetadataRepo(tx)
		values := []struct {
			key   string
			value []byte
		}{
			{metaUsername, []byte(userName)},
			{metaSalt, salt},
			{metaVerifier, verifier},
			{metaOwnerID, []byte(ownerID)},
		}
		for _, v := range values {
			if err := metadataRepo.Set(ctx, v.key, v.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Register creates a new account on the server. It generates a random salt,
// derives a master key from the provided password, computes a verifier,
// and sends salt/verifier to the server.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	verifier := cryptox.MakeVerifier(key)

	if err := a.client.Register(ctx, username, salt, verifier); err != nil {
		return err
	}
	return nil
}

func (a *authService) Logout(ctx context.Context) {
	a.setOffline(false)
	a.sessions.Logout(ctx)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// ClearOfflineData wipes locally cached credentials. Device-scoped sync
// flags live in the same table and are kept.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		metadataRepo := a.getMetadataRepo(tx)
		for _, k := range []string{metaUsername, metaSalt, metaVerifier, metaOwnerID} {
			if err := metadataRepo.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}
