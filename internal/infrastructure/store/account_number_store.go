package store

import (
	"context"
	"fmt"
	"sync"
)

// AccountNumberStore is an in-memory account number registry
type AccountNumberStore struct {
	mu      sync.Mutex
	holders map[string]string // number -> aggregateID
}

func NewAccountNumberStore() *AccountNumberStore {
	return &AccountNumberStore{
		holders: make(map[string]string),
	}
}

func (ns *AccountNumberStore) ReserveAccountNumber(ctx context.Context, number, aggregateID string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if holder, ok := ns.holders[number]; ok && holder != aggregateID {
		return fmt.Errorf("%w: %s", ErrDuplicateAccountNumber, number)
	}
	ns.holders[number] = aggregateID
	return nil
}

func (ns *AccountNumberStore) ReleaseAccountNumber(ctx context.Context, number, aggregateID string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.holders[number] == aggregateID {
		delete(ns.holders, number)
	}
	return nil
}
