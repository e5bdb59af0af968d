package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/bank-es/internal/domain/account"
	"github.com/example/bank-es/internal/domain/aggregate"
	"github.com/example/bank-es/internal/domain/snapshot"
	"github.com/example/bank-es/internal/infrastructure/store"
	"github.com/example/bank-es/internal/metrics"
)

var (
	// ErrTransferIncomplete means the sender's debit is durable but the
	// receiver's credit is not. The money is in flight and needs manual repair.
	ErrTransferIncomplete = errors.New("transfer incomplete")
	ErrNotOwner           = errors.New("account belongs to another user")
	ErrEventStoreRequired = errors.New("event store is required")
)

// Publisher receives every event once it is durable.
type Publisher interface {
	Publish(ctx context.Context, event store.Event) error
}

type Config struct {
	EventStore store.EventStoreInterface
	// SnapshotStore is optional; without it every load is a full replay.
	SnapshotStore store.SnapshotStoreInterface
	// Strategy defaults to snapshot.EventCount with snapshot.DefaultInterval.
	Strategy snapshot.Strategy
	// AccountNumbers is optional; without it account numbers are not checked
	// for uniqueness.
	AccountNumbers store.AccountNumberStoreInterface
	Publisher      Publisher
	Logger         *slog.Logger
	Metrics        metrics.Recorder
}

// Handler runs account commands: load, mutate, persist, snapshot, publish.
// It holds no aggregate state between calls.
type Handler struct {
	events    store.EventStoreInterface
	snapshots store.SnapshotStoreInterface
	strategy  snapshot.Strategy
	numbers   store.AccountNumberStoreInterface
	publisher Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.EventStore == nil {
		return nil, ErrEventStoreRequired
	}
	h := &Handler{
		events:    cfg.EventStore,
		snapshots: cfg.SnapshotStore,
		strategy:  cfg.Strategy,
		numbers:   cfg.AccountNumbers,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if h.strategy == nil {
		h.strategy = snapshot.EventCount{Interval: snapshot.DefaultInterval}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "command")
	if h.metrics == nil {
		h.metrics = metrics.Nop()
	}
	return h, nil
}

// CreateAccount opens a new account and persists its AccountCreated event.
// The account number is reserved first and released again if the event
// cannot be stored.
func (h *Handler) CreateAccount(ctx context.Context, cmd CreateAccount) (view AccountView, err error) {
	defer h.observe("create_account", time.Now(), &err)

	a, err := account.Open(cmd.AccountNumber, cmd.Holder, cmd.OwnerID)
	if err != nil {
		return AccountView{}, err
	}
	if err := h.reserveNumber(ctx, a); err != nil {
		return AccountView{}, err
	}
	if err := h.commit(ctx, a); err != nil {
		h.releaseNumber(ctx, a)
		return AccountView{}, err
	}

	h.logger.Info("account created", "account_id", a.ID(), "account_number", a.AccountNumber())
	return viewOf(a), nil
}

func (h *Handler) Deposit(ctx context.Context, cmd Deposit) (view AccountView, err error) {
	defer h.observe("deposit", time.Now(), &err)

	return h.mutate(ctx, cmd.AccountID, cmd.RequestedBy, func(a *account.Account) error {
		return a.Deposit(cmd.Amount)
	})
}

func (h *Handler) Withdraw(ctx context.Context, cmd Withdraw) (view AccountView, err error) {
	defer h.observe("withdraw", time.Now(), &err)

	return h.mutate(ctx, cmd.AccountID, cmd.RequestedBy, func(a *account.Account) error {
		return a.Withdraw(cmd.Amount)
	})
}

// Transfer debits one account and credits another. The two aggregates are
// persisted one after the other; there is no cross-aggregate transaction.
func (h *Handler) Transfer(ctx context.Context, cmd Transfer) (result TransferResult, err error) {
	defer h.observe("transfer", time.Now(), &err)

	if cmd.FromAccountID == "" || cmd.ToAccountID == "" {
		return TransferResult{}, aggregate.ErrInvalidAggregateID
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return TransferResult{}, account.ErrSelfTransfer
	}

	sender, err := h.loadAccount(ctx, cmd.FromAccountID)
	if err != nil {
		return TransferResult{}, err
	}
	if err := checkOwner(sender, cmd.RequestedBy); err != nil {
		return TransferResult{}, err
	}
	receiver, err := h.loadAccount(ctx, cmd.ToAccountID)
	if err != nil {
		return TransferResult{}, err
	}

	if err := sender.TransferOut(receiver.AccountNumber(), cmd.Amount); err != nil {
		return TransferResult{}, err
	}
	if err := receiver.TransferIn(sender.AccountNumber(), cmd.Amount); err != nil {
		return TransferResult{}, err
	}

	if err := h.commit(ctx, sender); err != nil {
		return TransferResult{}, err
	}
	if err := h.commit(ctx, receiver); err != nil {
		h.logger.Error("transfer debited sender but failed to credit receiver",
			"from_account_id", sender.ID(),
			"to_account_id", receiver.ID(),
			"amount", cmd.Amount.String(),
			"error", err,
		)
		return TransferResult{}, fmt.Errorf("%w: %s debited, %s not credited: %w",
			ErrTransferIncomplete, sender.ID(), receiver.ID(), err)
	}

	h.logger.Info("transfer completed",
		"from_account_id", sender.ID(),
		"to_account_id", receiver.ID(),
		"amount", cmd.Amount.String(),
	)
	return TransferResult{From: viewOf(sender), To: viewOf(receiver)}, nil
}

// GetAccount loads the current state straight from the event log.
func (h *Handler) GetAccount(ctx context.Context, q GetAccount) (view AccountView, err error) {
	defer h.observe("get_account", time.Now(), &err)

	a, err := h.loadAccount(ctx, q.AccountID)
	if err != nil {
		return AccountView{}, err
	}
	if err := checkOwner(a, q.RequestedBy); err != nil {
		return AccountView{}, err
	}
	return viewOf(a), nil
}

func (h *Handler) mutate(ctx context.Context, id, requestedBy string, fn func(*account.Account) error) (AccountView, error) {
	a, err := h.loadAccount(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	if err := checkOwner(a, requestedBy); err != nil {
		return AccountView{}, err
	}
	if err := fn(a); err != nil {
		return AccountView{}, err
	}
	if err := h.commit(ctx, a); err != nil {
		return AccountView{}, err
	}
	return viewOf(a), nil
}

func checkOwner(a *account.Account, requestedBy string) error {
	if requestedBy != "" && requestedBy != a.OwnerID() {
		return fmt.Errorf("%w: %s", ErrNotOwner, a.ID())
	}
	return nil
}

// commit persists the pending events and then runs the best-effort steps.
func (h *Handler) reserveNumber(ctx context.Context, a *account.Account) error {
	if h.numbers == nil {
		return nil
	}
	err := h.numbers.ReserveAccountNumber(ctx, numberKey(a), a.ID())
	if errors.Is(err, store.ErrDuplicateAccountNumber) {
		return fmt.Errorf("%w: %s", account.ErrAccountNumberTaken, a.AccountNumber())
	}
	if err != nil {
		return fmt.Errorf("failed to reserve account number %s: %w", a.AccountNumber(), err)
	}
	return nil
}

// numberKey is the reservation key; surrounding blanks never make a number distinct.
func numberKey(a *account.Account) string {
	return strings.TrimSpace(a.AccountNumber())
}

func (h *Handler) releaseNumber(ctx context.Context, a *account.Account) {
	if h.numbers == nil {
		return
	}
	if err := h.numbers.ReleaseAccountNumber(ctx, numberKey(a), a.ID()); err != nil {
		h.logger.Error("failed to release account number",
			"account_id", a.ID(),
			"account_number", a.AccountNumber(),
			"error", err,
		)
	}
}

func (h *Handler) commit(ctx context.Context, a *account.Account) error {
	from := a.Version() - len(a.UncommittedEvents())
	committed, err := h.save(ctx, a)
	if err != nil {
		return err
	}
	h.maybeSnapshot(ctx, a, from)
	h.publish(ctx, committed)
	return nil
}

// loadAccount rebuilds an account from its latest usable snapshot plus the
// events after it, or from the full history.
func (h *Handler) loadAccount(ctx context.Context, id string) (*account.Account, error) {
	if id == "" {
		return nil, aggregate.ErrInvalidAggregateID
	}

	if h.snapshots != nil {
		snap, err := h.snapshots.GetSnapshot(ctx, id)
		if errors.Is(err, store.ErrUnreadableSnapshot) {
			h.logger.Warn("ignoring unreadable snapshot", "aggregate_id", id, "error", err)
			snap, err = nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot for %s: %w", id, err)
		}
		if a := h.restore(snap); a != nil {
			stored, err := h.events.GetEventsFromVersion(ctx, id, snap.Version)
			if err != nil {
				return nil, fmt.Errorf("failed to load events for %s: %w", id, err)
			}
			delta, err := decodeEvents(stored)
			if err != nil {
				return nil, err
			}
			if err := a.Replay(delta...); err != nil {
				return nil, err
			}
			h.metrics.AggregateLoaded(account.AggregateType, metrics.SourceSnapshot)
			return a, nil
		}
	}

	stored, err := h.events.GetEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", id, err)
	}
	history, err := decodeEvents(stored)
	if err != nil {
		return nil, err
	}
	a, err := account.Load(id, history)
	if err != nil {
		return nil, err
	}
	h.metrics.AggregateLoaded(account.AggregateType, metrics.SourceReplay)
	return a, nil
}

// restore returns nil when the snapshot is absent or unusable, in which case
// the caller falls back to a full replay.
func (h *Handler) restore(snap *store.Snapshot) *account.Account {
	if snap == nil {
		return nil
	}
	if snap.AggregateType != account.AggregateType {
		h.logger.Warn("ignoring snapshot of unexpected aggregate type",
			"aggregate_id", snap.AggregateID,
			"aggregate_type", snap.AggregateType,
			"version", snap.Version,
		)
		return nil
	}
	state, err := decodeSnapshot(snap)
	if err != nil {
		h.logger.Warn("ignoring unreadable snapshot", "aggregate_id", snap.AggregateID, "error", err)
		return nil
	}
	a, err := account.Restore(snap.AggregateID, snap.Version, state)
	if err != nil {
		h.logger.Warn("ignoring invalid snapshot", "aggregate_id", snap.AggregateID, "error", err)
		return nil
	}
	return a
}

// save appends every pending event in order. The pending list is cleared only
// when all appends succeed, so a failed save can be inspected or retried.
func (h *Handler) save(ctx context.Context, a *account.Account) ([]store.Event, error) {
	pending := a.UncommittedEvents()
	committed := make([]store.Event, 0, len(pending))

	for _, e := range pending {
		se, err := encodeEvent(e)
		if err != nil {
			return nil, err
		}
		if err := h.events.Append(ctx, se); err != nil {
			if errors.Is(err, store.ErrDuplicateVersion) {
				h.metrics.VersionConflict(account.AggregateType)
				return nil, fmt.Errorf("%w: %w", aggregate.ErrVersionConflict, err)
			}
			return nil, fmt.Errorf("failed to append %s version %d of %s (%d of %d committed): %w",
				se.EventType, se.Version, se.AggregateID, len(committed), len(pending), err)
		}
		committed = append(committed, se)
	}

	a.ClearUncommitted()
	h.metrics.EventsAppended(account.AggregateType, len(committed))
	return committed, nil
}

// maybeSnapshot saves a snapshot when the strategy fires for any version the
// last commit moved through. Failures never fail the command.
func (h *Handler) maybeSnapshot(ctx context.Context, a *account.Account, from int) {
	if h.snapshots == nil {
		return
	}
	due := false
	for v := from + 1; v <= a.Version(); v++ {
		if h.strategy.ShouldSnapshot(v) {
			due = true
			break
		}
	}
	if !due {
		return
	}

	snap, err := encodeSnapshot(a)
	if err == nil {
		err = h.snapshots.SaveSnapshot(ctx, snap)
	}
	h.metrics.SnapshotSaved(account.AggregateType, err == nil)
	if err != nil {
		h.logger.Warn("failed to save snapshot", "aggregate_id", a.ID(), "version", a.Version(), "error", err)
		return
	}
	h.logger.Debug("snapshot saved", "aggregate_id", a.ID(), "version", a.Version())
}

func (h *Handler) publish(ctx context.Context, committed []store.Event) {
	if h.publisher == nil {
		return
	}
	for _, e := range committed {
		err := h.publisher.Publish(ctx, e)
		h.metrics.EventPublished(e.EventType, err == nil)
		if err != nil {
			h.logger.Warn("failed to publish event",
				"event_id", e.ID,
				"event_type", e.EventType,
				"aggregate_id", e.AggregateID,
				"error", err,
			)
		}
	}
}

func (h *Handler) observe(command string, start time.Time, err *error) {
	result := Classify(*err)
	h.metrics.CommandHandled(command, result, time.Since(start))
	if result == ResultError {
		h.logger.Error("command failed", "command", command, "error", *err)
	}
}
