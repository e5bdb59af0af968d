package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// ============================================
// SQLite Store Tests
// ============================================

func TestSQLiteEventStore(t *testing.T) {
	testEventStoreContract(t, func(t *testing.T) EventStoreInterface {
		return NewSQLiteEventStore(openTestSQLite(t))
	})
}

func TestSQLiteEventStore_EventID(t *testing.T) {
	testEventIDContract(t, func(t *testing.T) EventStoreInterface {
		return NewSQLiteEventStore(openTestSQLite(t))
	})
}

func TestSQLiteSnapshotStore(t *testing.T) {
	testSnapshotStoreContract(t, func(t *testing.T) SnapshotStoreInterface {
		return NewSQLiteSnapshotStore(openTestSQLite(t))
	})
}

func TestSQLiteUserStore(t *testing.T) {
	testUserStoreContract(t, func(t *testing.T) UserStoreInterface {
		return NewSQLiteUserStore(openTestSQLite(t))
	})
}

func TestSQLiteAccountNumberStore(t *testing.T) {
	testAccountNumberStoreContract(t, func(t *testing.T) AccountNumberStoreInterface {
		return NewSQLiteAccountNumberStore(openTestSQLite(t))
	})
}

func TestOpenSQLite_SchemaIsIdempotent(t *testing.T) {
	db := openTestSQLite(t)
	_, err := db.ExecContext(context.Background(), sqliteSchema)
	require.NoError(t, err)
}
