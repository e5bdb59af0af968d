package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The contract helpers run against every adapter: in-memory and SQLite in the
// default test run, Postgres, DynamoDB (fake client) and Redis where available.

func newTestEvent(aggregateID string, version int) Event {
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "BankAccount",
		EventType:     "MoneyDeposited",
		Data:          json.RawMessage(fmt.Sprintf(`{"amount":"%d"}`, 10+version)),
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		Version:       version,
	}
}

func testEventStoreContract(t *testing.T, newStore func(t *testing.T) EventStoreInterface) {
	ctx := context.Background()

	t.Run("append and load in version order", func(t *testing.T) {
		es := newStore(t)
		id := uuid.New().String()
		for v := 0; v < 4; v++ {
			require.NoError(t, es.Append(ctx, newTestEvent(id, v)))
		}

		events, err := es.GetEvents(ctx, id)
		require.NoError(t, err)
		require.Len(t, events, 4)
		for i, e := range events {
			assert.Equal(t, i, e.Version)
			assert.Equal(t, id, e.AggregateID)
			assert.Equal(t, "BankAccount", e.AggregateType)
			assert.Equal(t, "MoneyDeposited", e.EventType)
			assert.JSONEq(t, fmt.Sprintf(`{"amount":"%d"}`, 10+i), string(e.Data))
			assert.False(t, e.Timestamp.IsZero())
		}
	})

	t.Run("round trips the envelope", func(t *testing.T) {
		es := newStore(t)
		in := newTestEvent(uuid.New().String(), 0)
		require.NoError(t, es.Append(ctx, in))

		events, err := es.GetEvents(ctx, in.AggregateID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, in.ID, events[0].ID)
		assert.WithinDuration(t, in.Timestamp, events[0].Timestamp, time.Millisecond)
	})

	t.Run("unknown aggregate yields no events", func(t *testing.T) {
		es := newStore(t)
		events, err := es.GetEvents(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("duplicate version rejected", func(t *testing.T) {
		es := newStore(t)
		id := uuid.New().String()
		require.NoError(t, es.Append(ctx, newTestEvent(id, 0)))
		require.NoError(t, es.Append(ctx, newTestEvent(id, 1)))

		err := es.Append(ctx, newTestEvent(id, 1))
		assert.ErrorIs(t, err, ErrDuplicateVersion)

		events, err := es.GetEvents(ctx, id)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("streams are independent", func(t *testing.T) {
		es := newStore(t)
		a, b := uuid.New().String(), uuid.New().String()
		require.NoError(t, es.Append(ctx, newTestEvent(a, 0)))
		require.NoError(t, es.Append(ctx, newTestEvent(b, 0)))

		events, err := es.GetEvents(ctx, a)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, a, events[0].AggregateID)
	})

	t.Run("from version is exclusive", func(t *testing.T) {
		es := newStore(t)
		id := uuid.New().String()
		for v := 0; v < 6; v++ {
			require.NoError(t, es.Append(ctx, newTestEvent(id, v)))
		}

		events, err := es.GetEventsFromVersion(ctx, id, 2)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, 3, events[0].Version)
		assert.Equal(t, 5, events[2].Version)

		events, err = es.GetEventsFromVersion(ctx, id, 5)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("concurrent appends of one version", func(t *testing.T) {
		es := newStore(t)
		id := uuid.New().String()
		require.NoError(t, es.Append(ctx, newTestEvent(id, 0)))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := es.Append(ctx, newTestEvent(id, 1))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrDuplicateVersion)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
	})
}

func newTestSnapshot(aggregateID string, version int) *Snapshot {
	return &Snapshot{
		AggregateID:   aggregateID,
		AggregateType: "BankAccount",
		Version:       version,
		State:         json.RawMessage(fmt.Sprintf(`{"balance":"%d"}`, version*10)),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func testSnapshotStoreContract(t *testing.T, newStore func(t *testing.T) SnapshotStoreInterface) {
	ctx := context.Background()

	t.Run("absent snapshot is nil without error", func(t *testing.T) {
		ss := newStore(t)
		s, err := ss.GetSnapshot(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("save and get", func(t *testing.T) {
		ss := newStore(t)
		in := newTestSnapshot(uuid.New().String(), 2)
		require.NoError(t, ss.SaveSnapshot(ctx, in))

		out, err := ss.GetSnapshot(ctx, in.AggregateID)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, in.AggregateID, out.AggregateID)
		assert.Equal(t, "BankAccount", out.AggregateType)
		assert.Equal(t, 2, out.Version)
		assert.JSONEq(t, string(in.State), string(out.State))
	})

	t.Run("newer version replaces", func(t *testing.T) {
		ss := newStore(t)
		id := uuid.New().String()
		require.NoError(t, ss.SaveSnapshot(ctx, newTestSnapshot(id, 2)))
		require.NoError(t, ss.SaveSnapshot(ctx, newTestSnapshot(id, 5)))

		out, err := ss.GetSnapshot(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, 5, out.Version)
	})

	t.Run("older version never replaces", func(t *testing.T) {
		ss := newStore(t)
		id := uuid.New().String()
		require.NoError(t, ss.SaveSnapshot(ctx, newTestSnapshot(id, 5)))
		require.NoError(t, ss.SaveSnapshot(ctx, newTestSnapshot(id, 2)))

		out, err := ss.GetSnapshot(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, 5, out.Version)
		assert.JSONEq(t, `{"balance":"50"}`, string(out.State))
	})
}

func testUserStoreContract(t *testing.T, newStore func(t *testing.T) UserStoreInterface) {
	ctx := context.Background()

	newUser := func(email string) *User {
		return &User{
			ID:           uuid.New().String(),
			Email:        email,
			Name:         "Ada Lovelace",
			PasswordHash: "$2a$10$hash",
			CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		us := newStore(t)
		u := newUser("ada@example.com")
		require.NoError(t, us.CreateUser(ctx, u))

		byID, err := us.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", byID.Email)
		assert.Equal(t, u.PasswordHash, byID.PasswordHash)

		byEmail, err := us.GetUserByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		us := newStore(t)
		require.NoError(t, us.CreateUser(ctx, newUser("ada@example.com")))
		err := us.CreateUser(ctx, newUser("Ada@Example.com"))
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("not found", func(t *testing.T) {
		us := newStore(t)
		_, err := us.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = us.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

// testEventIDContract covers stores that also key events by id. A reused id
// is a distinct failure from a version clash.
func testEventIDContract(t *testing.T, newStore func(t *testing.T) EventStoreInterface) {
	ctx := context.Background()

	t.Run("duplicate event id is not a version conflict", func(t *testing.T) {
		es := newStore(t)
		id := uuid.New().String()
		first := newTestEvent(id, 0)
		require.NoError(t, es.Append(ctx, first))

		reused := newTestEvent(id, 1)
		reused.ID = first.ID
		err := es.Append(ctx, reused)

		assert.ErrorIs(t, err, ErrDuplicateEventID)
		assert.NotErrorIs(t, err, ErrDuplicateVersion)

		events, err := es.GetEvents(ctx, id)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("duplicate event id across aggregates", func(t *testing.T) {
		es := newStore(t)
		first := newTestEvent(uuid.New().String(), 0)
		require.NoError(t, es.Append(ctx, first))

		other := newTestEvent(uuid.New().String(), 0)
		other.ID = first.ID
		err := es.Append(ctx, other)

		assert.ErrorIs(t, err, ErrDuplicateEventID)
		assert.NotErrorIs(t, err, ErrDuplicateVersion)
	})
}

func testAccountNumberStoreContract(t *testing.T, newStore func(t *testing.T) AccountNumberStoreInterface) {
	ctx := context.Background()

	newNumber := func() string {
		return "NL-" + uuid.New().String()[:8]
	}

	t.Run("second aggregate is rejected", func(t *testing.T) {
		ns := newStore(t)
		number := newNumber()
		require.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-1"))

		err := ns.ReserveAccountNumber(ctx, number, "acc-2")
		assert.ErrorIs(t, err, ErrDuplicateAccountNumber)
	})

	t.Run("holder may reserve again", func(t *testing.T) {
		ns := newStore(t)
		number := newNumber()
		require.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-1"))
		assert.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-1"))
	})

	t.Run("release frees the number", func(t *testing.T) {
		ns := newStore(t)
		number := newNumber()
		require.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-1"))
		require.NoError(t, ns.ReleaseAccountNumber(ctx, number, "acc-1"))

		assert.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-2"))
	})

	t.Run("release by another aggregate is ignored", func(t *testing.T) {
		ns := newStore(t)
		number := newNumber()
		require.NoError(t, ns.ReserveAccountNumber(ctx, number, "acc-1"))
		require.NoError(t, ns.ReleaseAccountNumber(ctx, number, "acc-2"))

		err := ns.ReserveAccountNumber(ctx, number, "acc-3")
		assert.ErrorIs(t, err, ErrDuplicateAccountNumber)
	})

	t.Run("concurrent reservations of one number", func(t *testing.T) {
		ns := newStore(t)
		number := newNumber()

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := ns.ReserveAccountNumber(ctx, number, fmt.Sprintf("acc-%d", i))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrDuplicateAccountNumber)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
	})
}
