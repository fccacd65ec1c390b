// Package feed fans snapshot insert events out to the subscribers of each
// owner.
package feed

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
)

const defaultBuffer = 16

// Hub keeps per-owner subscriber channels. A subscriber that falls behind
// loses events rather than stalling publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan models.SnapshotEvent]struct{}
	buffer int
	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Hub{
		subs:   make(map[string]map[chan models.SnapshotEvent]struct{}),
		buffer: defaultBuffer,
		logger: logger.With("module", "feed"),
	}
}

// Subscribe registers interest in ownerID's inserts. The returned cancel
// unregisters and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(ownerID string) (<-chan models.SnapshotEvent, func()) {
	ch := make(chan models.SnapshotEvent, h.buffer)

	h.mu.Lock()
	set, ok := h.subs[ownerID]
	if !ok {
		set = make(map[chan models.SnapshotEvent]struct{})
		h.subs[ownerID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[ownerID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, ownerID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of ev.OwnerID without blocking.
func (h *Hub) Publish(ctx context.Context, ev models.SnapshotEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.OwnerID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn(ctx, "subscriber lagging, event dropped", "owner", ev.OwnerID, "snapshot", ev.ID)
		}
	}
}

// Subscribers reports how many channels listen for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}
