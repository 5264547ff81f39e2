package repository

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a credential-holding account in the database
type Account struct {
	ID            uuid.UUID  `db:"id"`
	Email         string     `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	Locked        bool       `db:"locked"`
	FailureCount  int        `db:"failure_count"`
	LastFailureAt *time.Time `db:"last_failure_at"`
	ResetToken    *string    `db:"reset_token"`
	Version       int64      `db:"version"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastFailureAt != nil {
		t := *a.LastFailureAt
		c.LastFailureAt = &t
	}
	if a.ResetToken != nil {
		s := *a.ResetToken
		c.ResetToken = &s
	}
	return &c
}

// ClearLockout resets every lockout field
func (a *Account) ClearLockout() {
	a.Locked = false
	a.FailureCount = 0
	a.LastFailureAt = nil
}
