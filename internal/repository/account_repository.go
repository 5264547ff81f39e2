package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/welldanyogia/account-auth/internal/metrics"
)

// Common errors
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrConflict is returned by Save when the stored version moved on since the account was read
	ErrConflict = errors.New("account was modified concurrently")
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint violations
const uniqueViolation = "23505"

// AccountRepository defines the interface for account data access.
// Save must reject writes based on a stale Version with ErrConflict so that
// callers can apply read-modify-write updates without losing concurrent changes.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByEmailAndResetToken(ctx context.Context, email, resetToken string) (*Account, error)
	Save(ctx context.Context, account *Account) error
}

// accountRepository implements AccountRepository using PostgreSQL
type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, locked, failure_count, last_failure_at, reset_token, version, created_at, updated_at`

// Create inserts a new account. The email is stored lower-cased.
func (r *accountRepository) Create(ctx context.Context, account *Account) error {
	defer metrics.TimeQuery("account_create")()

	query := `
		INSERT INTO accounts (email, password_hash, locked, failure_count, last_failure_at, reset_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at
	`

	account.Email = strings.ToLower(account.Email)
	err := r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.Locked,
		account.FailureCount,
		account.LastFailureAt,
		account.ResetToken,
	).Scan(&account.ID, &account.Version, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailAlreadyExists
		}
		return err
	}

	return nil
}

// FindByID retrieves an account by its ID
func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	defer metrics.TimeQuery("account_find_by_id")()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// FindByEmail retrieves an account by email address (case-insensitive)
func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	defer metrics.TimeQuery("account_find_by_email")()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return r.queryOne(ctx, query, email)
}

// FindByEmailAndResetToken retrieves an account whose email matches and whose
// current reset token equals resetToken. Accounts without a reset token never match.
func (r *accountRepository) FindByEmailAndResetToken(ctx context.Context, email, resetToken string) (*Account, error) {
	defer metrics.TimeQuery("account_find_by_reset_token")()

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
		  AND reset_token IS NOT NULL
		  AND reset_token = $2
	`
	return r.queryOne(ctx, query, email, resetToken)
}

// Save writes the mutable fields of an account if its version is still current.
// On success the account's Version and UpdatedAt are refreshed.
func (r *accountRepository) Save(ctx context.Context, account *Account) error {
	defer metrics.TimeQuery("account_save")()

	query := `
		UPDATE accounts
		SET password_hash = $3,
		    locked = $4,
		    failure_count = $5,
		    last_failure_at = $6,
		    reset_token = $7,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		account.ID,
		account.Version,
		account.PasswordHash,
		account.Locked,
		account.FailureCount,
		account.LastFailureAt,
		account.ResetToken,
	).Scan(&account.Version, &account.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return err
	}

	return nil
}

func (r *accountRepository) queryOne(ctx context.Context, query string, args ...any) (*Account, error) {
	account := &Account{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Locked,
		&account.FailureCount,
		&account.LastFailureAt,
		&account.ResetToken,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}
