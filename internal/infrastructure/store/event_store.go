package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event is the persistence envelope of a domain event.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore is an in-memory event log
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]Event // aggregateID -> events ordered by version
	ids    map[string]struct{}
}

func NewEventStore() *EventStore {
	return &EventStore{
		events: make(map[string][]Event),
		ids:    make(map[string]struct{}),
	}
}

// Append stores an event unless its version is already taken for the
// aggregate or its id is already stored
func (es *EventStore) Append(ctx context.Context, event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if _, ok := es.ids[event.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEventID, event.ID)
	}

	stream := es.events[event.AggregateID]
	i := len(stream)
	for i > 0 && stream[i-1].Version >= event.Version {
		if stream[i-1].Version == event.Version {
			return fmt.Errorf("%w: aggregate %s version %d", ErrDuplicateVersion, event.AggregateID, event.Version)
		}
		i--
	}

	stream = append(stream, Event{})
	copy(stream[i+1:], stream[i:])
	stream[i] = event
	es.events[event.AggregateID] = stream
	es.ids[event.ID] = struct{}{}
	return nil
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, -1)
}

// GetEventsFromVersion returns events after the given version
func (es *EventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var out []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > version {
			out = append(out, e)
		}
	}
	return out, nil
}
