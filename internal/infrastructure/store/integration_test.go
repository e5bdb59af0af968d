//go:build integration

package store

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startContainer(t *testing.T, image string, port string, opts ...testcontainers.ContainerCustomizer) string {
	t.Helper()
	ctx := t.Context()

	opts = append(opts, testcontainers.WithExposedPorts(port))
	c, err := testcontainers.Run(ctx, image, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func newPostgresTestDB(t *testing.T) *sql.DB {
	t.Helper()
	addr := startContainer(t, "postgres:16-alpine", "5432/tcp",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "bank",
			"POSTGRES_PASSWORD": "bank",
			"POSTGRES_DB":       "bank",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)

	db, err := ConnectPostgres(t.Context(), fmt.Sprintf("postgres://bank:bank@%s/bank?sslmode=disable", addr))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsurePostgresSchema(t.Context(), db))
	return db
}

// ============================================
// Postgres Store Tests
// ============================================

func TestPostgresStores(t *testing.T) {
	db := newPostgresTestDB(t)

	t.Run("events", func(t *testing.T) {
		testEventStoreContract(t, func(t *testing.T) EventStoreInterface {
			return NewPostgresEventStore(db)
		})
		testEventIDContract(t, func(t *testing.T) EventStoreInterface {
			return NewPostgresEventStore(db)
		})
	})
	t.Run("snapshots", func(t *testing.T) {
		testSnapshotStoreContract(t, func(t *testing.T) SnapshotStoreInterface {
			return NewPostgresSnapshotStore(db)
		})
	})
	t.Run("users", func(t *testing.T) {
		testUserStoreContract(t, func(t *testing.T) UserStoreInterface {
			_, err := db.ExecContext(t.Context(), "TRUNCATE users")
			require.NoError(t, err)
			return NewPostgresUserStore(db)
		})
	})
	t.Run("account numbers", func(t *testing.T) {
		testAccountNumberStoreContract(t, func(t *testing.T) AccountNumberStoreInterface {
			return NewPostgresAccountNumberStore(db)
		})
	})
}

// ============================================
// Redis Snapshot Store Tests
// ============================================

func TestRedisSnapshotStore(t *testing.T) {
	addr := startContainer(t, "redis:7-alpine", "6379/tcp",
		testcontainers.WithWaitStrategy(wait.ForLog("Ready to accept connections")),
	)

	client, err := ConnectRedis(t.Context(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	testSnapshotStoreContract(t, func(t *testing.T) SnapshotStoreInterface {
		return NewRedisSnapshotStore(client)
	})

	t.Run("unreadable snapshot", func(t *testing.T) {
		require.NoError(t, client.HSet(t.Context(), redisSnapshotPrefix+"acc-garbled", "version", 3, "snapshot", "{not json").Err())

		_, err := NewRedisSnapshotStore(client).GetSnapshot(t.Context(), "acc-garbled")
		assert.ErrorIs(t, err, ErrUnreadableSnapshot)
	})
}
