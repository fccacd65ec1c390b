// Package connectivity derives an online/offline signal from periodic server
// pings and reports transitions to listeners.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/jonboulle/clockwork"
)

const pingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Listener receives the new state after every transition.
type Listener func(ctx context.Context, online bool)

type Watcher struct {
	pinger   Pinger
	interval time.Duration
	clock    clockwork.Clock
	logger   logging.Logger

	mu        sync.Mutex
	online    bool
	listeners []Listener
}

func NewWatcher(p Pinger, interval time.Duration, clock clockwork.Clock, l logging.Logger) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{pinger: p, interval: interval, clock: clock, logger: l.With("module", "connectivity")}
}

func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *Watcher) OnChange(l Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// Check pings the server once and updates the state.
func (w *Watcher) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := w.pinger.Ping(pctx)
	cancel()

	w.Set(ctx, err == nil)
	return err == nil
}

// Set records a connectivity state and notifies listeners on a transition.
func (w *Watcher) Set(ctx context.Context, online bool) {
	w.mu.Lock()
	if w.online == online {
		w.mu.Unlock()
		return
	}
	w.online = online
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	if online {
		w.logger.Info(ctx, "switched to online mode")
	} else {
		w.logger.Info(ctx, "switched to offline mode")
	}
	for _, l := range listeners {
		l(ctx, online)
	}
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
