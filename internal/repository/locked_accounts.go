package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LockedAccount is a reporting row for an account frozen by the lockout policy
type LockedAccount struct {
	ID            uuid.UUID  `db:"id"`
	Email         string     `db:"email"`
	FailureCount  int        `db:"failure_count"`
	LastFailureAt *time.Time `db:"last_failure_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// LockedAccountStore answers operator queries about locked accounts
type LockedAccountStore struct {
	db *sqlx.DB
}

// NewLockedAccountStore creates a new LockedAccountStore instance
func NewLockedAccountStore(db *sqlx.DB) *LockedAccountStore {
	return &LockedAccountStore{db: db}
}

// ListLocked returns every locked account, most recently failed first
func (s *LockedAccountStore) ListLocked(ctx context.Context) ([]LockedAccount, error) {
	query := `
		SELECT id, email, failure_count, last_failure_at, updated_at
		FROM accounts
		WHERE locked = TRUE
		ORDER BY last_failure_at DESC NULLS LAST, email
	`

	var accounts []LockedAccount
	if err := s.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CountLocked returns the number of locked accounts
func (s *LockedAccountStore) CountLocked(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts WHERE locked = TRUE`)
	return count, err
}
