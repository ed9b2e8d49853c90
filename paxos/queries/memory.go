package queries

import (
	"sort"
	"sync"
)

// MemoryStore implements the Store interface with a map.
type MemoryStore struct {
	l      sync.RWMutex
	learnt map[int][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{learnt: make(map[int][]byte)}
}

// GetLearntValue implements the Store interface.
func (m *MemoryStore) GetLearntValue(turnID int) ([]byte, bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	v, ok := m.learnt[turnID]
	return v, ok, nil
}

// SetLearntValue implements the Store interface.
func (m *MemoryStore) SetLearntValue(turnID int, v []byte) error {
	m.l.Lock()
	defer m.l.Unlock()
	m.learnt[turnID] = v
	return nil
}

// GetAllLearntValues implements the Store interface.
func (m *MemoryStore) GetAllLearntValues() ([]LearntWithTid, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	all := make([]LearntWithTid, 0, len(m.learnt))
	for tid, v := range m.learnt {
		all = append(all, LearntWithTid{TurnID: tid, Learnt: v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TurnID < all[j].TurnID })
	return all, nil
}

// GetLastTurnID implements the Store interface.
func (m *MemoryStore) GetLastTurnID() (int, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	var lastID int
	for tid := range m.learnt {
		if tid > lastID {
			lastID = tid
		}
	}
	return lastID, nil
}

// ResetLearntValue implements the Store interface.
func (m *MemoryStore) ResetLearntValue(turnID int) error {
	m.l.Lock()
	defer m.l.Unlock()
	delete(m.learnt, turnID)
	return nil
}

// ResetAllLearntValues implements the Store interface.
func (m *MemoryStore) ResetAllLearntValues() error {
	m.l.Lock()
	defer m.l.Unlock()
	m.learnt = make(map[int][]byte)
	return nil
}

// Close implements the Store interface.
func (m *MemoryStore) Close() error { return nil }
