package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/bank-es/internal/infrastructure/store"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu     sync.RWMutex
	events map[string][]store.Event

	// For tracking calls in tests
	AppendCalls    []store.Event
	AppendErr      error
	AppendCallback func(ctx context.Context, event store.Event) error
	GetEventsCalls []GetEventsCall
	GetEventsErr   error
}

// GetEventsCall records parameters passed to GetEvents and GetEventsFromVersion.
// FromVersion is -1 for a full load.
type GetEventsCall struct {
	AggregateID string
	FromVersion int
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events: make(map[string][]store.Event),
	}
}

// Append stores an event in memory, enforcing version and id uniqueness
func (m *MockEventStore) Append(ctx context.Context, event store.Event) error {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, event)
	callback, appendErr := m.AppendCallback, m.AppendErr
	m.mu.Unlock()

	// Use callback if provided
	if callback != nil {
		if err := callback(ctx, event); err != nil {
			return err
		}
	} else if appendErr != nil {
		return appendErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stream := range m.events {
		for _, e := range stream {
			if e.ID == event.ID {
				return fmt.Errorf("%w: %s", store.ErrDuplicateEventID, event.ID)
			}
		}
	}
	for _, e := range m.events[event.AggregateID] {
		if e.Version == event.Version {
			return fmt.Errorf("%w: aggregate %s version %d", store.ErrDuplicateVersion, event.AggregateID, event.Version)
		}
	}
	m.events[event.AggregateID] = append(m.events[event.AggregateID], event)
	sort.Slice(m.events[event.AggregateID], func(i, j int) bool {
		return m.events[event.AggregateID][i].Version < m.events[event.AggregateID][j].Version
	})
	return nil
}

// GetEvents returns events for an aggregate
func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	return m.load(aggregateID, -1)
}

// GetEventsFromVersion returns events after the given version
func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]store.Event, error) {
	return m.load(aggregateID, version)
}

func (m *MockEventStore) load(aggregateID string, version int) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetEventsCalls = append(m.GetEventsCalls, GetEventsCall{AggregateID: aggregateID, FromVersion: version})
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}

	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > version {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns the stored events of an aggregate without recording a call
func (m *MockEventStore) Events(aggregateID string) []store.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.events[aggregateID]...)
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.AppendCalls = nil
	m.AppendErr = nil
	m.AppendCallback = nil
	m.GetEventsCalls = nil
	m.GetEventsErr = nil
}

// SetEvents sets events directly for testing
func (m *MockEventStore) SetEvents(aggregateID string, events []store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[aggregateID] = events
}
