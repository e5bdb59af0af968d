package store

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateVersion is returned by Append when the (aggregate_id, version)
	// pair is already taken. It is the only concurrency signal the write side has.
	ErrDuplicateVersion = errors.New("duplicate aggregate version")
	// ErrDuplicateEventID is returned by Append when the event id is already
	// stored. It is not a concurrency signal.
	ErrDuplicateEventID       = errors.New("duplicate event id")
	ErrUserNotFound           = errors.New("user not found")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrDuplicateAccountNumber = errors.New("account number already taken")
	// ErrUnreadableSnapshot marks a stored snapshot that cannot be decoded.
	// Callers ignore the snapshot and rebuild from the full history.
	ErrUnreadableSnapshot = errors.New("unreadable snapshot")
)

// EventStoreInterface is the append-only event log.
type EventStoreInterface interface {
	Append(ctx context.Context, event Event) error
	// GetEvents returns every event of an aggregate in ascending version order.
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	// GetEventsFromVersion returns events with a version strictly greater than
	// the given one, ascending.
	GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error)
}

// SnapshotStoreInterface keeps at most one snapshot per aggregate.
type SnapshotStoreInterface interface {
	// GetSnapshot returns nil, nil when no snapshot exists.
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	// SaveSnapshot upserts the snapshot but never replaces a higher version.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// UserStoreInterface persists registered users.
type UserStoreInterface interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// AccountNumberStoreInterface reserves account numbers so no two accounts
// share one.
type AccountNumberStoreInterface interface {
	// ReserveAccountNumber claims the number for the aggregate. It fails with
	// ErrDuplicateAccountNumber when another aggregate holds it.
	ReserveAccountNumber(ctx context.Context, number, aggregateID string) error
	// ReleaseAccountNumber drops a reservation held by the aggregate. Releasing
	// a number held by someone else is a no-op.
	ReleaseAccountNumber(ctx context.Context, number, aggregateID string) error
}
