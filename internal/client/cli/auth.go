package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for an email and password and attempts to create
// a new account via the AuthService. The password is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	a.println("Success! You can log in now.")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unavailable
// (errors.Is(err, client.ErrUnavailable)), it falls back to offline login
// with the credentials cached by the last online login. A successful login
// starts the session, which lets the sync engine restore or push.
//
// The password is securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		a.println("Already logged in, log out first")
		return nil
	}

	userName, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	_, err = a.authService.OnlineLogin(ctx, userName, password)
	if err == nil {
		a.watcher.Set(ctx, true)
		a.println("Login successful")
		return nil
	}
	if !errors.Is(err, client.ErrUnavailable) {
		return err
	}

	a.watcher.Set(ctx, false)
	a.println("Server unavailable, trying offline login...")
	if _, err := a.authService.OfflineLogin(ctx, userName, password); err != nil {
		return err
	}
	a.println("Offline login successful, changes will sync once the server is back")
	return nil
}

// Logout ends the session. "logout forget" also removes the credentials
// cached for offline login.
func (a *App) Logout(ctx context.Context, args []string) error {
	a.authService.Logout(ctx)
	if a.resetTokens != nil {
		a.resetTokens()
	}
	if len(args) > 0 && args[0] == "forget" {
		if err := a.authService.ClearOfflineData(ctx); err != nil {
			return err
		}
		a.println("Logged out, offline credentials removed")
		return nil
	}
	a.println("Logged out")
	return nil
}

// resumeSession signs an offline-started session in to the server once it
// is reachable, so the pending push and the change feed carry credentials.
func (a *App) resumeSession(ctx context.Context, online bool) {
	if !online {
		return
	}
	resumed, err := a.authService.ResumeOnline(ctx)
	if err != nil {
		a.notifier.Failure(ctx, "Could not sign in to the server, log out and log in again", err)
		return
	}
	if resumed {
		a.logger.Info(ctx, "signed in after reconnect")
		a.engine.Resubscribe(ctx)
	}
}
