package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/clientkeeper/internal/client/backup"
	"github.com/dmitrijs2005/clientkeeper/internal/client/client"
	"github.com/dmitrijs2005/clientkeeper/internal/client/config"
	"github.com/dmitrijs2005/clientkeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/clientkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/clientkeeper/internal/client/services"
	"github.com/dmitrijs2005/clientkeeper/internal/client/session"
	"github.com/dmitrijs2005/clientkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/jonboulle/clockwork"
)

// remoteAPI is everything the client needs from the backup server.
type remoteAPI interface {
	client.BackupStore
	client.Auth
}

type App struct {
	config *config.Config
	logger logging.Logger
	out    io.Writer
	reader *bufio.Reader

	local       *localstore.Store
	authService services.AuthService
	clients     *services.ClientService
	reminders   *services.ReminderService
	backup      *backup.Service
	engine      *syncer.Engine
	sessions    *session.Manager
	watcher     *connectivity.Watcher
	notifier    syncer.Notifier

	// resetTokens drops server tokens on logout; nil when the remote keeps none.
	resetTokens func()
	closers     []func() error
}

// NewApp opens the local database, connects the server client and wires the
// sync engine to the session and connectivity signals.
func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	store, err := localstore.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, l)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := assemble(c, store, apiClient, l, os.Stdin, os.Stdout, clockwork.NewRealClock())
	a.resetTokens = apiClient.Logout
	a.closers = append(a.closers, apiClient.Close, store.Close)
	return a, nil
}

func assemble(c *config.Config, store *localstore.Store, remote remoteAPI, l logging.Logger, in io.Reader, out io.Writer, clock clockwork.Clock) *App {
	out = &lockedWriter{w: out}
	a := &App{
		config:   c,
		logger:   l.With("module", "cli"),
		out:      out,
		reader:   bufio.NewReader(in),
		local:    store,
		sessions: session.NewManager(),
		notifier: newTerminalNotifier(out),
	}

	a.engine = syncer.New(store, remote, a.sessions, syncer.Options{
		Debounce:  c.SyncDebounce,
		Retention: c.SnapshotRetention,
		Clock:     clock,
		Notifier:  a.notifier,
		Logger:    l,
	})
	a.sessions.OnChange(a.engine.OnIdentityChanged)

	// listeners run in order: credentials first, then the engine's push
	a.watcher = connectivity.NewWatcher(remote, c.OnlineCheckInterval, clock, l)
	a.watcher.OnChange(a.resumeSession)
	a.watcher.OnChange(a.engine.SetOnline)

	a.authService = services.NewAuthService(remote, store.DB(), a.sessions)
	a.clients = services.NewClientService(store.Clients(), store.Reminders(), a.engine, clock)
	a.reminders = services.NewReminderService(store.Clients(), store.Reminders(), a.engine, clock)
	a.backup = backup.New(store, a.engine, remote, a.sessions, clock, l)
	return a
}

// Run starts the connectivity watcher, asks for credentials and serves
// commands until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close()

	go a.watcher.Run(ctx)

	a.println("Welcome to ClientKeeper (type 'help' for commands)")
	if err := a.Login(ctx); err != nil {
		a.printErr(err)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) close() {
	a.engine.Close()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	_, ok := a.sessions.Current()
	return ok
}

// getStatus renders the prompt suffix, e.g. "(ann@example.com online pending)".
func (a *App) getStatus() string {
	var parts []string
	if id, ok := a.sessions.Current(); ok {
		parts = append(parts, id.Username)
	}
	if a.watcher.Online() {
		parts = append(parts, "online")
	} else {
		parts = append(parts, "offline")
	}
	st := a.engine.Status(context.Background())
	switch {
	case st.Syncing():
		parts = append(parts, "syncing")
	case st.Pending:
		parts = append(parts, "pending")
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) printErr(err error) {
	a.logger.Warn(context.Background(), "command failed", "error", err)
	fmt.Fprintf(a.out, "Error: %v\n", err)
}
