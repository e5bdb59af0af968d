package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation = "23505"

	pgEventsVersionKey = "events_aggregate_id_version_key"
	pgEventsPrimaryKey = "events_pkey"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	data           JSONB NOT NULL,
	version        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT events_aggregate_id_version_key UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS account_numbers (
	number       TEXT PRIMARY KEY,
	aggregate_id TEXT NOT NULL
);
`

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Append inserts an event. The (aggregate_id, version) unique key rejects a
// concurrent writer that loaded the same version.
func (es *PostgresEventStore) Append(ctx context.Context, event Event) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		[]byte(event.Data),
		event.Version,
		event.Timestamp,
	)
	if err != nil {
		switch pgUniqueConstraint(err) {
		case pgEventsVersionKey:
			return fmt.Errorf("%w: aggregate %s version %d", ErrDuplicateVersion, event.AggregateID, event.Version)
		case pgEventsPrimaryKey:
			return fmt.Errorf("%w: %s", ErrDuplicateEventID, event.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, -1)
}

// GetEventsFromVersion returns events after the given version
func (es *PostgresEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		aggregateID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Data, &e.Version, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// PostgresSnapshotStore stores snapshots in PostgreSQL
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (ss *PostgresSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	err := ss.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &s.State, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

// SaveSnapshot upserts the snapshot; an older version never overwrites a newer one
func (ss *PostgresSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
		 WHERE snapshots.version <= EXCLUDED.version`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		[]byte(snapshot.State),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// PostgresUserStore stores registered users in PostgreSQL
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (us *PostgresUserStore) CreateUser(ctx context.Context, user *User) error {
	_, err := us.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at)
		 VALUES ($1, LOWER($2), $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if pgUniqueConstraint(err) == "users_email_key" {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (us *PostgresUserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return us.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (us *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return us.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = LOWER($1)`, email)
}

func (us *PostgresUserStore) getUser(ctx context.Context, query, arg string) (*User, error) {
	var u User
	err := us.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// pgUniqueConstraint returns the constraint a unique violation hit, or "" for
// any other error.
func pgUniqueConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return pqErr.Constraint
	}
	return ""
}

// PostgresAccountNumberStore reserves account numbers in PostgreSQL
type PostgresAccountNumberStore struct {
	db *sql.DB
}

func NewPostgresAccountNumberStore(db *sql.DB) *PostgresAccountNumberStore {
	return &PostgresAccountNumberStore{db: db}
}

// ReserveAccountNumber inserts the claim. Reserving a number the aggregate
// already holds succeeds.
func (ns *PostgresAccountNumberStore) ReserveAccountNumber(ctx context.Context, number, aggregateID string) error {
	res, err := ns.db.ExecContext(ctx,
		`INSERT INTO account_numbers (number, aggregate_id) VALUES ($1, $2)
		 ON CONFLICT (number) DO UPDATE SET aggregate_id = EXCLUDED.aggregate_id
		 WHERE account_numbers.aggregate_id = EXCLUDED.aggregate_id`,
		number, aggregateID,
	)
	if err != nil {
		return fmt.Errorf("failed to reserve account number: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateAccountNumber, number)
	}
	return nil
}

func (ns *PostgresAccountNumberStore) ReleaseAccountNumber(ctx context.Context, number, aggregateID string) error {
	_, err := ns.db.ExecContext(ctx,
		`DELETE FROM account_numbers WHERE number = $1 AND aggregate_id = $2`,
		number, aggregateID,
	)
	if err != nil {
		return fmt.Errorf("failed to release account number: %w", err)
	}
	return nil
}

// EnsurePostgresSchema creates the tables every Postgres store needs
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
