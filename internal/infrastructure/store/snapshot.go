package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotStore is an in-memory snapshot store
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]Snapshot),
	}
}

// GetSnapshot returns the latest snapshot or nil
func (ss *SnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	s, ok := ss.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	s.State = append(json.RawMessage(nil), s.State...)
	return &s, nil
}

// SaveSnapshot keeps the snapshot with the highest version
func (ss *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if current, ok := ss.snapshots[snapshot.AggregateID]; ok && current.Version > snapshot.Version {
		return nil
	}
	s := *snapshot
	s.State = append(json.RawMessage(nil), snapshot.State...)
	ss.snapshots[snapshot.AggregateID] = s
	return nil
}
