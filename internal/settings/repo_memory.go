package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps the settings document in memory. Tests and local runs only.
type MemoryStore struct {
	mu    sync.Mutex
	doc   *Settings
	Saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) LoadSettings(ctx context.Context) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return Settings{}, false, nil
	}
	return clone(*m.doc), true, nil
}

func (m *MemoryStore) SaveSettings(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := clone(s)
	m.doc = &c
	m.Saves++
	return nil
}
