package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVersionConflict      = errors.New("version conflict")
	ErrReplayOrderViolation = errors.New("replay order violation")
	ErrAggregateNotFound    = errors.New("aggregate not found")
	ErrInvalidAggregateID   = errors.New("aggregate id is required")
)

// Event is an immutable, versioned fact about a single aggregate.
// Ordering is defined by Version only, never by Timestamp.
type Event[P any] struct {
	ID          string
	AggregateID string
	Version     int
	Timestamp   time.Time
	Payload     P
}

// ApplyFunc folds one event into the domain state.
type ApplyFunc[P any] func(Event[P]) error

// Root tracks identity, the current version and the events recorded since the
// last successful persistence. A Root belongs to exactly one command invocation
// and must never be shared between goroutines.
type Root[P any] struct {
	id          string
	version     int
	uncommitted []Event[P]
	apply       ApplyFunc[P]
}

// New creates a root for a brand-new aggregate with a random id and no events.
func New[P any](apply ApplyFunc[P]) *Root[P] {
	return &Root[P]{
		id:      uuid.New().String(),
		version: -1,
		apply:   apply,
	}
}

// FromHistory rebuilds a root by replaying persisted events in order.
func FromHistory[P any](id string, events []Event[P], apply ApplyFunc[P]) (*Root[P], error) {
	if id == "" {
		return nil, ErrInvalidAggregateID
	}
	r := &Root[P]{id: id, version: -1, apply: apply}
	for _, e := range events {
		if err := r.Replay(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromSnapshot creates a root positioned at a snapshot version. The caller is
// responsible for restoring the domain state that the snapshot carries.
func FromSnapshot[P any](id string, version int, apply ApplyFunc[P]) (*Root[P], error) {
	if id == "" {
		return nil, ErrInvalidAggregateID
	}
	if version < 0 {
		return nil, fmt.Errorf("%w: snapshot version %d is negative", ErrReplayOrderViolation, version)
	}
	return &Root[P]{id: id, version: version, apply: apply}, nil
}

func (r *Root[P]) ID() string       { return r.id }
func (r *Root[P]) Version() int     { return r.version }
func (r *Root[P]) NextVersion() int { return r.version + 1 }

// NewEvent builds the next event for this aggregate without recording it.
func (r *Root[P]) NewEvent(payload P) Event[P] {
	return Event[P]{
		ID:          uuid.New().String(),
		AggregateID: r.id,
		Version:     r.NextVersion(),
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// RecordAndApply folds a newly raised event and keeps it as uncommitted.
// The event version must be exactly one past the current version.
func (r *Root[P]) RecordAndApply(e Event[P]) error {
	if e.Version != r.version+1 {
		return fmt.Errorf("%w: aggregate %s expected version %d, got %d", ErrVersionConflict, r.id, r.version+1, e.Version)
	}
	if e.AggregateID != r.id {
		return fmt.Errorf("%w: event %s belongs to aggregate %q, not %q", ErrInvalidAggregateID, e.ID, e.AggregateID, r.id)
	}
	if err := r.apply(e); err != nil {
		return err
	}
	r.uncommitted = append(r.uncommitted, e)
	r.version = e.Version
	return nil
}

// Replay folds an already persisted event. Versions may skip ahead (e.g. the
// first event after a snapshot) but must never go backwards or repeat.
func (r *Root[P]) Replay(e Event[P]) error {
	if e.Version <= r.version {
		return fmt.Errorf("%w: aggregate %s at version %d cannot replay version %d", ErrReplayOrderViolation, r.id, r.version, e.Version)
	}
	if err := r.apply(e); err != nil {
		return err
	}
	r.version = e.Version
	return nil
}

// Uncommitted returns a copy of the events recorded since the last clear.
func (r *Root[P]) Uncommitted() []Event[P] {
	out := make([]Event[P], len(r.uncommitted))
	copy(out, r.uncommitted)
	return out
}

// ClearUncommitted drops the pending events. Call it only once every pending
// event has been durably appended.
func (r *Root[P]) ClearUncommitted() { r.uncommitted = nil }
