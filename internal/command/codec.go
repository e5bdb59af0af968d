package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/bank-es/internal/domain/account"
	"github.com/example/bank-es/internal/infrastructure/store"
)

func encodeEvent(e account.Event) (store.Event, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return store.Event{}, fmt.Errorf("failed to encode %s: %w", e.Payload.Kind(), err)
	}
	return store.Event{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: account.AggregateType,
		EventType:     string(e.Payload.Kind()),
		Data:          data,
		Timestamp:     e.Timestamp,
		Version:       e.Version,
	}, nil
}

func decodeEvent(e store.Event) (account.Event, error) {
	if e.AggregateType != account.AggregateType {
		return account.Event{}, fmt.Errorf("%w: event %s belongs to aggregate type %q",
			account.ErrCorruptEvent, e.ID, e.AggregateType)
	}
	payload, err := account.DecodePayload(e.EventType, e.Data)
	if err != nil {
		return account.Event{}, fmt.Errorf("event %s version %d: %w", e.ID, e.Version, err)
	}
	return account.Event{
		ID:          e.ID,
		AggregateID: e.AggregateID,
		Version:     e.Version,
		Timestamp:   e.Timestamp,
		Payload:     payload,
	}, nil
}

func decodeEvents(stored []store.Event) ([]account.Event, error) {
	out := make([]account.Event, 0, len(stored))
	for _, e := range stored {
		decoded, err := decodeEvent(e)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func encodeSnapshot(a *account.Account) (*store.Snapshot, error) {
	state, err := json.Marshal(a.State())
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot state: %w", err)
	}
	return &store.Snapshot{
		AggregateID:   a.ID(),
		AggregateType: account.AggregateType,
		Version:       a.Version(),
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func decodeSnapshot(s *store.Snapshot) (account.State, error) {
	var state account.State
	if err := json.Unmarshal(s.State, &state); err != nil {
		return account.State{}, fmt.Errorf("failed to decode snapshot state: %w", err)
	}
	return state, nil
}
