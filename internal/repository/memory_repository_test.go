package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

func TestMemoryAccountRepository_CreateAndFind(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account := &Account{Email: "Alice@Example.com", PasswordHash: "hash"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if account.ID == uuid.Nil {
		t.Fatal("expected ID to be assigned")
	}
	if account.Email != "alice@example.com" {
		t.Errorf("expected lower-cased email, got %q", account.Email)
	}

	byID, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if byID.Email != account.Email {
		t.Errorf("FindByID() email = %q, want %q", byID.Email, account.Email)
	}

	byEmail, err := repo.FindByEmail(ctx, "ALICE@example.COM")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if byEmail.ID != account.ID {
		t.Errorf("FindByEmail() returned a different account")
	}

	if _, err := repo.FindByEmail(ctx, "bob@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, uuid.New()); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemoryAccountRepository_DuplicateEmail(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, &Account{Email: "dup@example.com"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, &Account{Email: "DUP@example.com"})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Errorf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestMemoryAccountRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	token := "reset"
	account := &Account{Email: "copy@example.com", ResetToken: &token}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Mutating the caller's value must not leak into the store.
	*account.ResetToken = "changed"
	account.FailureCount = 99

	found, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.FailureCount != 0 || *found.ResetToken != "reset" {
		t.Errorf("store was mutated through caller pointer: %+v", found)
	}

	found.Locked = true
	again, _ := repo.FindByID(ctx, account.ID)
	if again.Locked {
		t.Error("store was mutated through returned pointer")
	}
}

func TestMemoryAccountRepository_FindByEmailAndResetToken(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	noToken := &Account{Email: "none@example.com"}
	if err := repo.Create(ctx, noToken); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	token := "abc123"
	withToken := &Account{Email: "some@example.com", ResetToken: &token}
	if err := repo.Create(ctx, withToken); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		email   string
		token   string
		wantErr error
	}{
		{"matching token", "some@example.com", "abc123", nil},
		{"matching token mixed case email", "Some@Example.com", "abc123", nil},
		{"wrong token", "some@example.com", "nope", ErrAccountNotFound},
		{"account without token", "none@example.com", "", ErrAccountNotFound},
		{"unknown email", "ghost@example.com", "abc123", ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.FindByEmailAndResetToken(ctx, tt.email, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FindByEmailAndResetToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryAccountRepository_SaveRejectsStaleVersion(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account := &Account{Email: "stale@example.com"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, _ := repo.FindByID(ctx, account.ID)
	second, _ := repo.FindByID(ctx, account.ID)

	first.FailureCount = 1
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if first.Version != account.Version+1 {
		t.Errorf("expected version to advance to %d, got %d", account.Version+1, first.Version)
	}

	second.FailureCount = 1
	if err := repo.Save(ctx, second); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for stale save, got %v", err)
	}

	if err := repo.Save(ctx, &Account{ID: uuid.New()}); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for unknown account, got %v", err)
	}
}

func TestMemoryAccountRepository_SaveKeepsEmailImmutable(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account := &Account{Email: "keep@example.com"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	account.Email = "other@example.com"
	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := repo.FindByEmail(ctx, "keep@example.com"); err != nil {
		t.Errorf("original email should still resolve: %v", err)
	}
	if _, err := repo.FindByEmail(ctx, "other@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("new email should not resolve, got %v", err)
	}
}

func TestMemoryAccountRepository_CanceledContext(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Create(ctx, &Account{Email: "x@example.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// Concurrent read-modify-write loops that retry on ErrConflict never lose an increment.
func TestMemoryAccountRepository_ConcurrentIncrements(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account := &Account{Email: "race@example.com"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				current, err := repo.FindByID(ctx, account.ID)
				if err != nil {
					t.Errorf("FindByID() error = %v", err)
					return
				}
				current.FailureCount++
				err = repo.Save(ctx, current)
				if errors.Is(err, ErrConflict) {
					continue
				}
				if err != nil {
					t.Errorf("Save() error = %v", err)
				}
				return
			}
		}()
	}
	wg.Wait()

	final, _ := repo.FindByID(ctx, account.ID)
	if final.FailureCount != workers {
		t.Errorf("expected failure count %d, got %d", workers, final.FailureCount)
	}
}

// Property: Clone produces an independent deep copy
func TestPropertyAccountCloneIsIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.StringMatching(`[A-Za-z0-9_-]{0,20}`).Draw(t, "token")
		at := time.Unix(rapid.Int64Range(0, 1<<32).Draw(t, "at"), 0).UTC()
		original := &Account{
			ID:            uuid.New(),
			Email:         strings.ToLower(rapid.StringMatching(`[a-z]{3,8}@[a-z]{3,8}\.com`).Draw(t, "email")),
			FailureCount:  rapid.IntRange(0, 10).Draw(t, "failures"),
			LastFailureAt: &at,
			ResetToken:    &token,
		}

		clone := original.Clone()
		*clone.ResetToken += "x"
		*clone.LastFailureAt = clone.LastFailureAt.Add(time.Hour)
		clone.FailureCount++

		if *original.ResetToken != token {
			t.Fatalf("reset token shared between clone and original")
		}
		if !original.LastFailureAt.Equal(at) {
			t.Fatalf("last failure time shared between clone and original")
		}
		if original.FailureCount == clone.FailureCount {
			t.Fatalf("failure count not copied by value")
		}
	})
}
