package mocks

import (
	"context"
	"sync"

	"github.com/example/bank-es/internal/infrastructure/store"
)

// MockSnapshotStore is a mock implementation of SnapshotStoreInterface for testing
type MockSnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]store.Snapshot

	SaveCalls []store.Snapshot
	SaveErr   error
	GetCalls  []string
	GetErr    error
}

// NewMockSnapshotStore creates a new MockSnapshotStore
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{
		snapshots: make(map[string]store.Snapshot),
	}
}

func (m *MockSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, aggregateID)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	s, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls = append(m.SaveCalls, *snapshot)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if current, ok := m.snapshots[snapshot.AggregateID]; ok && current.Version > snapshot.Version {
		return nil
	}
	m.snapshots[snapshot.AggregateID] = *snapshot
	return nil
}

// SetSnapshot stores a snapshot directly for testing
func (m *MockSnapshotStore) SetSnapshot(snapshot store.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
}
