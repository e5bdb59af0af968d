package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// User is a registered API user. Accounts reference it through their owner id.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore is an in-memory user store
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // lowercased email -> id
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (us *UserStore) CreateUser(ctx context.Context, user *User) error {
	us.mu.Lock()
	defer us.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := us.byEmail[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
	}
	us.byID[user.ID] = *user
	us.byEmail[key] = user.ID
	return nil
}

func (us *UserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	us.mu.RLock()
	defer us.mu.RUnlock()

	u, ok := us.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (us *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	us.mu.RLock()
	defer us.mu.RUnlock()

	id, ok := us.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := us.byID[id]
	return &u, nil
}
