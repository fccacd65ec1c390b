// Package session holds the identity of the signed-in owner for the lifetime
// of the process and notifies interested components when it changes.
package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/common"
)

// Identity is the signed-in owner. Key is the master key used to seal
// snapshot payloads; it is wiped on logout.
type Identity struct {
	OwnerID  string
	Username string
	Key      []byte
}

// Listener is called after every login and logout.
type Listener func(ctx context.Context)

type Manager struct {
	mu        sync.RWMutex
	current   *Identity
	loading   bool
	listeners []Listener
}

func NewManager() *Manager {
	return &Manager{}
}

// Current returns the signed-in identity, if any.
func (m *Manager) Current() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Identity{}, false
	}
	return *m.current, true
}

// OwnerID returns the signed-in owner id or "".
func (m *Manager) OwnerID() string {
	id, _ := m.Current()
	return id.OwnerID
}

// Loading reports whether an identity is being resolved right now.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// BeginLoading marks identity resolution as in progress. Login or
// EndLoading clears it.
func (m *Manager) BeginLoading() {
	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()
}

func (m *Manager) EndLoading() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
}

// OnChange registers l for identity changes.
func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Login replaces the current identity and notifies listeners.
func (m *Manager) Login(ctx context.Context, id Identity) {
	id.Key = append([]byte(nil), id.Key...)

	m.mu.Lock()
	if m.current != nil {
		common.WipeByteArray(m.current.Key)
	}
	m.current = &id
	m.loading = false
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(ctx)
	}
}

// Logout forgets the identity and notifies listeners. It is a no-op when
// nobody is signed in.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	common.WipeByteArray(m.current.Key)
	m.current = nil
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(ctx)
	}
}
