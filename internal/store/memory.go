package store

import (
	"context"
	"sync"
)

// MemoryStore keeps balances in process memory. Safe for concurrent use by
// multiple channel runners.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]int64
	starting int64
}

// NewMemoryStore creates a store seeding new wallets with starting chips.
func NewMemoryStore(starting int64) *MemoryStore {
	if starting <= 0 {
		starting = DefaultStartingBalance
	}
	return &MemoryStore{
		balances: make(map[string]int64),
		starting: starting,
	}
}

func memKey(channelID, userID string) string {
	return channelID + ":" + userID
}

// LoadBalance returns the stored balance, seeding the wallet on first sight.
func (m *MemoryStore) LoadBalance(_ context.Context, channelID, userID string) (int64, error) {
	key := memKey(channelID, userID)

	m.mu.RLock()
	bal, ok := m.balances[key]
	m.mu.RUnlock()
	if ok {
		return bal, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[key]; ok {
		return bal, nil
	}
	m.balances[key] = m.starting
	return m.starting, nil
}

// SaveBalanceDelta applies a net round result atomically.
func (m *MemoryStore) SaveBalanceDelta(_ context.Context, channelID, userID string, delta int64) error {
	key := memKey(channelID, userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.balances[key]
	if !ok {
		cur = m.starting
	}
	m.balances[key] = cur + delta
	return nil
}
