package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	data           TEXT NOT NULL,
	version        INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS account_numbers (
	number       TEXT PRIMARY KEY,
	aggregate_id TEXT NOT NULL
);
`

// OpenSQLite opens (or creates) a SQLite database and applies the schema.
// ":memory:" is pinned to a single connection so every query sees the same database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// SQLiteEventStore stores events in SQLite
type SQLiteEventStore struct {
	db *sql.DB
}

func NewSQLiteEventStore(db *sql.DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

func (es *SQLiteEventStore) Append(ctx context.Context, event Event) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		string(event.Data),
		event.Version,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		switch sqliteConstraintCode(err) {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: aggregate %s version %d", ErrDuplicateVersion, event.AggregateID, event.Version)
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrDuplicateEventID, event.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (es *SQLiteEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, -1)
}

func (es *SQLiteEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events
		 WHERE aggregate_id = ? AND version > ?
		 ORDER BY version ASC`,
		aggregateID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			data      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Data = json.RawMessage(data)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// SQLiteSnapshotStore stores snapshots in SQLite
type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

func (ss *SQLiteSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var (
		s         Snapshot
		state     string
		createdAt string
	)
	err := ss.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	s.State = json.RawMessage(state)
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &s, nil
}

func (ss *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = excluded.aggregate_type,
			version = excluded.version,
			state = excluded.state,
			created_at = excluded.created_at
		 WHERE snapshots.version <= excluded.version`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		string(snapshot.State),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SQLiteUserStore stores registered users in SQLite
type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

func (us *SQLiteUserStore) CreateUser(ctx context.Context, user *User) error {
	_, err := us.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, strings.ToLower(user.Email), user.Name, user.PasswordHash,
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if sqliteConstraintCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (us *SQLiteUserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return us.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (us *SQLiteUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return us.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, strings.ToLower(email))
}

func (us *SQLiteUserStore) getUser(ctx context.Context, query, arg string) (*User, error) {
	var (
		u         User
		createdAt string
	)
	err := us.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &u, nil
}

// sqliteConstraintCode returns the extended result code of a constraint
// violation, or 0 for any other error. The primary key of a table reports
// SQLITE_CONSTRAINT_PRIMARYKEY; any other unique key reports
// SQLITE_CONSTRAINT_UNIQUE.
func sqliteConstraintCode(err error) int {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	switch code := sqliteErr.Code(); code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return code
	}
	return 0
}

// SQLiteAccountNumberStore reserves account numbers in SQLite
type SQLiteAccountNumberStore struct {
	db *sql.DB
}

func NewSQLiteAccountNumberStore(db *sql.DB) *SQLiteAccountNumberStore {
	return &SQLiteAccountNumberStore{db: db}
}

// ReserveAccountNumber inserts the claim. Reserving a number the aggregate
// already holds succeeds.
func (ns *SQLiteAccountNumberStore) ReserveAccountNumber(ctx context.Context, number, aggregateID string) error {
	res, err := ns.db.ExecContext(ctx,
		`INSERT INTO account_numbers (number, aggregate_id) VALUES (?, ?)
		 ON CONFLICT (number) DO UPDATE SET aggregate_id = excluded.aggregate_id
		 WHERE account_numbers.aggregate_id = excluded.aggregate_id`,
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

func (ns *SQLiteAccountNumberStore) ReleaseAccountNumber(ctx context.Context, number, aggregateID string) error {
	_, err := ns.db.ExecContext(ctx,
		`DELETE FROM account_numbers WHERE number = ? AND aggregate_id = ?`,
		number, aggregateID,
	)
	if err != nil {
		return fmt.Errorf("failed to release account number: %w", err)
	}
	return nil
}
