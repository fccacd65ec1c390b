package client

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memSnapshot struct {
	models.Snapshot
	seq int64
}

type memSub struct {
	owner string
	cb    func(models.SnapshotMeta)
}

// MemoryStore is an in-process BackupStore. Newest means latest CreatedAt,
// ties broken by insertion order. Feed callbacks run on their own goroutine.
type MemoryStore struct {
	clock clockwork.Clock

	mu        sync.Mutex
	seq       int64
	snapshots map[string][]*memSnapshot
	subs      map[int]memSub
	nextSub   int
	offline   bool
	failNext  map[string]error
	wg        sync.WaitGroup
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:     clock,
		snapshots: map[string][]*memSnapshot{},
		subs:      map[int]memSub{},
		failNext:  map[string]error{},
	}
}

// SetOffline makes every call fail with ErrUnavailable.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// FailNext makes the next call of op ("insert", "latest", "list", "delete")
// return err.
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

// Put stores a snapshot as if another device inserted it, without
// notifying subscribers.
func (m *MemoryStore) Put(ownerID string, s models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.OwnerID = ownerID
	m.snapshots[ownerID] = append(m.snapshots[ownerID], &memSnapshot{Snapshot: s, seq: m.seq})
}

// Wait blocks until every feed callback started so far has returned.
func (m *MemoryStore) Wait() {
	m.wg.Wait()
}

func (m *MemoryStore) check(op string) error {
	if m.offline {
		return ErrUnavailable
	}
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return nil
}

func (m *MemoryStore) InsertSnapshot(_ context.Context, ownerID string, n models.NewSnapshot) (models.SnapshotMeta, error) {
	m.mu.Lock()
	if err := m.check("insert"); err != nil {
		m.mu.Unlock()
		return models.SnapshotMeta{}, err
	}

	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	m.seq++
	s := &memSnapshot{
		Snapshot: models.Snapshot{
			SnapshotMeta: models.SnapshotMeta{
				ID:             id,
				OwnerID:        ownerID,
				CreatedAt:      m.clock.Now().UTC(),
				ClientsCount:   n.ClientsCount,
				RemindersCount: n.RemindersCount,
			},
			Payload: append([]byte(nil), n.Payload...),
			Nonce:   append([]byte(nil), n.Nonce...),
		},
		seq: m.seq,
	}
	m.snapshots[ownerID] = append(m.snapshots[ownerID], s)

	meta := s.SnapshotMeta
	var targets []func(models.SnapshotMeta)
	for _, sub := range m.subs {
		if sub.owner == ownerID {
			targets = append(targets, sub.cb)
		}
	}
	m.wg.Add(len(targets))
	m.mu.Unlock()

	for _, cb := range targets {
		go func(cb func(models.SnapshotMeta)) {
			defer m.wg.Done()
			cb(meta)
		}(cb)
	}

	return meta, nil
}

func (m *MemoryStore) sorted(ownerID string) []*memSnapshot {
	list := append([]*memSnapshot(nil), m.snapshots[ownerID]...)
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].seq > list[j].seq
	})
	return list
}

func (m *MemoryStore) GetLatestSnapshot(_ context.Context, ownerID string) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("latest"); err != nil {
		return nil, err
	}

	list := m.sorted(ownerID)
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	s := list[0].Snapshot
	s.Payload = append([]byte(nil), s.Payload...)
	s.Nonce = append([]byte(nil), s.Nonce...)
	return &s, nil
}

func (m *MemoryStore) ListSnapshots(_ context.Context, ownerID string) ([]models.SnapshotMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list"); err != nil {
		return nil, err
	}

	list := m.sorted(ownerID)
	out := make([]models.SnapshotMeta, 0, len(list))
	for _, s := range list {
		out = append(out, s.SnapshotMeta)
	}
	return out, nil
}

func (m *MemoryStore) ListSnapshotIDs(ctx context.Context, ownerID string) ([]string, error) {
	metas, err := m.ListSnapshots(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(metas))
	for _, s := range metas {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (m *MemoryStore) DeleteSnapshots(_ context.Context, ownerID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete"); err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.snapshots[ownerID][:0]
	for _, s := range m.snapshots[ownerID] {
		if _, ok := drop[s.ID]; !ok {
			kept = append(kept, s)
		}
	}
	m.snapshots[ownerID] = kept
	return nil
}

func (m *MemoryStore) SubscribeToInserts(_ context.Context, ownerID string, cb func(models.SnapshotMeta)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = memSub{owner: ownerID, cb: cb}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

// Subscribers reports how many feed subscriptions are active for ownerID.
func (m *MemoryStore) Subscribers(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.owner == ownerID {
			n++
		}
	}
	return n
}
