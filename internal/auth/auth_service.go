package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/welldanyogia/account-auth/internal/logger"
	"github.com/welldanyogia/account-auth/internal/metrics"
	"github.com/welldanyogia/account-auth/internal/repository"
)

// Auth service errors
var (
	ErrEmailInUse         = errors.New("email in use")
	ErrNotFound           = errors.New("account not found")
	ErrLocked             = errors.New("account locked")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrTokenMalformed     = errors.New("malformed token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenStale         = errors.New("token issued for a previous password")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEmailInUse         = "EMAIL_IN_USE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeNotFound           = "NOT_FOUND"
	CodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid   = "AUTH_TOKEN_INVALID"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternalError      = "INTERNAL_ERROR"
)

const (
	defaultSaveBackoff    = time.Millisecond
	defaultMaxSaveBackoff = 50 * time.Millisecond
	defaultNotifyTimeout  = 30 * time.Second
)

// Operation names used for metrics
const (
	opCreateAccount   = "create_account"
	opLogin           = "login"
	opTokenAuth       = "token"
	opChangePassword  = "change_password"
	opGenerateReset   = "generate_reset_token"
	opResetPassword   = "reset_password"
	opUnlockAccount   = "unlock_account"
	notifyKindWelcome = "welcome"
	notifyKindReset   = "reset_token"
)

// AuthServiceConfig holds the tunables of AuthService. Zero values select defaults.
type AuthServiceConfig struct {
	Lockout       LockoutPolicy
	Clock         Clock
	Logger        *slog.Logger
	NotifyTimeout time.Duration
	// SaveBackoff is the first wait after a version conflict. It doubles per
	// conflict up to MaxSaveBackoff, and each wait is jittered.
	SaveBackoff    time.Duration
	MaxSaveBackoff time.Duration
}

// AuthService handles authentication business logic.
// Every account mutation is a read-modify-write guarded by the repository's
// version check and retried on conflict until it lands or ctx ends.
type AuthService struct {
	accounts       repository.AccountRepository
	hasher         PasswordHasher
	tokens         *TokenService
	notifier       Notifier
	lockout        LockoutPolicy
	clock          Clock
	logger         *slog.Logger
	notifyTimeout  time.Duration
	saveBackoff    time.Duration
	maxSaveBackoff time.Duration

	notifications sync.WaitGroup
}

// NewAuthService creates a new AuthService instance
func NewAuthService(
	accounts repository.AccountRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	notifier Notifier,
	cfg AuthServiceConfig,
) *AuthService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Lockout.Threshold < 1 || cfg.Lockout.Window <= 0 {
		cfg.Lockout = DefaultLockoutPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.SaveBackoff <= 0 {
		cfg.SaveBackoff = defaultSaveBackoff
	}
	if cfg.MaxSaveBackoff < cfg.SaveBackoff {
		cfg.MaxSaveBackoff = max(defaultMaxSaveBackoff, cfg.SaveBackoff)
	}

	return &AuthService{
		accounts:       accounts,
		hasher:         hasher,
		tokens:         tokens,
		notifier:       notifier,
		lockout:        cfg.Lockout,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		notifyTimeout:  cfg.NotifyTimeout,
		saveBackoff:    cfg.SaveBackoff,
		maxSaveBackoff: cfg.MaxSaveBackoff,
	}
}

// CreateAccount registers a new account and returns a token for it.
// A welcome notification is sent in the background.
func (s *AuthService) CreateAccount(ctx context.Context, email, password string) (token string, err error) {
	defer func() { observe(opCreateAccount, err) }()
	email = normalizeEmail(email)

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return "", ErrEmailInUse
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return "", err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	account := &repository.Account{
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return "", ErrEmailInUse
		}
		return "", err
	}

	token, err = s.tokens.Issue(account.ID, account.PasswordHash)
	if err != nil {
		return "", err
	}

	s.log(ctx).Info("Account created", "account_id", account.ID, "email", account.Email)

	s.notify(ctx, notifyKindWelcome, account.Email, func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, account.Email)
	})

	return token, nil
}

// AuthenticateByPassword verifies credentials and returns a fresh token.
// A locked account is refused before the password is checked. A wrong
// password counts toward the lockout policy.
func (s *AuthService) AuthenticateByPassword(ctx context.Context, email, password string) (token string, err error) {
	defer func() { observe(opLogin, err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	if account.Locked {
		return "", ErrLocked
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if err := s.recordFailure(ctx, account); err != nil {
			return "", err
		}
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(account.ID, account.PasswordHash)
}

// AuthenticateByToken resolves a bearer token to its account. Tokens issued
// before the account's latest password change are rejected as stale.
func (s *AuthService) AuthenticateByToken(ctx context.Context, token string) (account *repository.Account, err error) {
	defer func() { observe(opTokenAuth, err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	account, err = s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if account.Locked {
		return nil, ErrLocked
	}

	current := Fingerprint(account.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(current), []byte(claims.Fingerprint)) != 1 {
		return nil, ErrTokenStale
	}

	return account, nil
}

// ChangePassword replaces the password after re-checking the current one
// and returns a token bound to the new password. Every earlier token
// becomes stale. A wrong current password counts toward the lockout policy.
func (s *AuthService) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) (token string, err error) {
	defer func() { observe(opChangePassword, err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	if account.Locked {
		return "", ErrLocked
	}

	if !s.hasher.Verify(currentPassword, account.PasswordHash) {
		if err := s.recordFailure(ctx, account); err != nil {
			return "", err
		}
		return "", ErrInvalidPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	verifiedHash := account.PasswordHash
	updated, err := s.update(ctx, account, func(a *repository.Account) error {
		if a.Locked {
			return ErrLocked
		}
		// The password changed underneath us; the verified one is gone.
		if a.PasswordHash != verifiedHash {
			return ErrInvalidPassword
		}
		a.PasswordHash = newHash
		a.ResetToken = nil
		a.ClearLockout()
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log(ctx).Info("Password changed", "account_id", updated.ID)

	return s.tokens.Issue(updated.ID, updated.PasswordHash)
}

// GenerateResetToken stores a new reset token on the account, replacing any
// previous one, and sends it to the account's email in the background.
func (s *AuthService) GenerateResetToken(ctx context.Context, email string) (err error) {
	defer func() { observe(opGenerateReset, err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	resetToken, err := newResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	updated, err := s.update(ctx, account, func(a *repository.Account) error {
		a.ResetToken = &resetToken
		return nil
	})
	if err != nil {
		return err
	}

	s.log(ctx).Info("Password reset token issued", "account_id", updated.ID)

	s.notify(ctx, notifyKindReset, updated.Email, func(ctx context.Context) error {
		return s.notifier.SendResetToken(ctx, updated.Email, resetToken)
	})

	return nil
}

// ResetPasswordByToken sets a new password if resetToken is the account's
// current reset token. An unknown email and a wrong token both yield ErrNotFound.
// The token is consumed and the lockout cleared.
func (s *AuthService) ResetPasswordByToken(ctx context.Context, email, resetToken, newPassword string) (err error) {
	defer func() { observe(opResetPassword, err) }()

	if resetToken == "" {
		return ErrNotFound
	}

	account, err := s.accounts.FindByEmailAndResetToken(ctx, normalizeEmail(email), resetToken)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotFound
		}
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	updated, err := s.update(ctx, account, func(a *repository.Account) error {
		if a.ResetToken == nil || subtle.ConstantTimeCompare([]byte(*a.ResetToken), []byte(resetToken)) != 1 {
			return ErrNotFound
		}
		a.PasswordHash = newHash
		a.ResetToken = nil
		a.ClearLockout()
		return nil
	})
	if err != nil {
		return err
	}

	s.log(ctx).Info("Password reset", "account_id", updated.ID)

	return nil
}

// UnlockAccount clears the lockout state of an account
func (s *AuthService) UnlockAccount(ctx context.Context, email string) (err error) {
	defer func() { observe(opUnlockAccount, err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	updated, err := s.update(ctx, account, func(a *repository.Account) error {
		a.ClearLockout()
		return nil
	})
	if err != nil {
		return err
	}

	s.log(ctx).Info("Account unlocked", "account_id", updated.ID)

	return nil
}

// Wait blocks until every in-flight notification has finished
func (s *AuthService) Wait() {
	s.notifications.Wait()
}

// recordFailure applies the lockout policy to a qualifying password failure
func (s *AuthService) recordFailure(ctx context.Context, account *repository.Account) error {
	var lockedNow bool

	updated, err := s.update(ctx, account, func(a *repository.Account) error {
		wasLocked := a.Locked
		next := s.lockout.Next(LockoutState{
			FailureCount:  a.FailureCount,
			LastFailureAt: a.LastFailureAt,
			Locked:        a.Locked,
		}, s.clock.Now())

		a.FailureCount = next.FailureCount
		a.LastFailureAt = next.LastFailureAt
		a.Locked = next.Locked
		lockedNow = !wasLocked && next.Locked
		return nil
	})
	if err != nil {
		return err
	}

	if lockedNow {
		metrics.AccountLockoutsTotal.Inc()
		s.log(ctx).Warn("Account locked after repeated password failures",
			"account_id", updated.ID,
			"failure_count", updated.FailureCount,
		)
	}

	return nil
}

// update applies mutate to a copy of the account and saves it. On a version
// conflict it waits a jittered backoff, reloads the account and runs mutate
// again on the fresh copy. Only ctx bounds the retries.
// Errors returned by mutate abort the update unchanged.
func (s *AuthService) update(ctx context.Context, account *repository.Account, mutate func(*repository.Account) error) (*repository.Account, error) {
	current := account
	backoff := s.saveBackoff

	for attempt := 1; ; attempt++ {
		next := current.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}

		err := s.accounts.Save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}

		metrics.SaveConflictsTotal.Inc()
		if err := sleepCtx(ctx, jitter(backoff)); err != nil {
			return nil, fmt.Errorf("save account %s after %d attempts: %w", account.ID, attempt, errors.Join(err, repository.ErrConflict))
		}
		backoff = min(backoff*2, s.maxSaveBackoff)

		current, err = s.accounts.FindByID(ctx, account.ID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
	}
}

// jitter returns a random duration in [d/2, d)
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// notify runs send on its own goroutine with a context that outlives the request
func (s *AuthService) notify(ctx context.Context, kind, email string, send func(context.Context) error) {
	log := s.log(ctx)
	detached := context.WithoutCancel(ctx)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(detached, s.notifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			metrics.NotificationsFailedTotal.WithLabelValues(kind).Inc()
			log.Error("Failed to send notification", "kind", kind, "email", email, "error", err)
		}
	}()
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*repository.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AuthService) log(ctx context.Context) *slog.Logger {
	return logger.WithCorrelationID(ctx, s.logger)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// observe records the outcome of an operation
func observe(operation string, err error) {
	metrics.RecordAuthAttempt(operation, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmailInUse):
		return "email_in_use"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInvalidPassword):
		return "invalid_password"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenStale):
		return "stale"
	default:
		return "error"
	}
}
