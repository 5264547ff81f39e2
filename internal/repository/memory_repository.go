package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryAccountRepository implements AccountRepository in process memory.
// Accounts are copied on the way in and out so callers never share state
// with the store; Save enforces the same version check as the Postgres store.
type memoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Account
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

// NewMemoryAccountRepository creates an in-memory AccountRepository
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		byID:    make(map[uuid.UUID]*Account),
		byEmail: make(map[string]uuid.UUID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new account, assigning its ID and initial version
func (r *memoryAccountRepository) Create(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email := strings.ToLower(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return ErrEmailAlreadyExists
	}

	now := r.now()
	account.ID = uuid.New()
	account.Email = email
	account.Version = 1
	account.CreatedAt = now
	account.UpdatedAt = now

	r.byID[account.ID] = account.Clone()
	r.byEmail[email] = account.ID
	return nil
}

// FindByID retrieves an account by its ID
func (r *memoryAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// FindByEmail retrieves an account by email address (case-insensitive)
func (r *memoryAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return r.byID[id].Clone(), nil
}

// FindByEmailAndResetToken retrieves an account matching both email and current reset token
func (r *memoryAccountRepository) FindByEmailAndResetToken(ctx context.Context, email, resetToken string) (*Account, error) {
	account, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.ResetToken == nil || *account.ResetToken != resetToken {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// Save replaces the stored account if the caller's version is current
func (r *memoryAccountRepository) Save(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[account.ID]
	if !ok || stored.Version != account.Version {
		return ErrConflict
	}

	account.Version++
	account.UpdatedAt = r.now()
	// Email and creation time are immutable after Create.
	account.Email = stored.Email
	account.CreatedAt = stored.CreatedAt

	r.byID[account.ID] = account.Clone()
	return nil
}
