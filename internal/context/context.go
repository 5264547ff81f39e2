package context

import (
	"context"

	"github.com/welldanyogia/account-auth/internal/repository"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// AccountIDKey is the context key for the authenticated account ID
	AccountIDKey ContextKey = "account_id"
	// EmailKey is the context key for the authenticated account email
	EmailKey ContextKey = "email"
	// AccountKey is the context key for the authenticated account record
	AccountKey ContextKey = "account"

	requestAccountKey ContextKey = "request_account"
)

// requestAccount is shared by every context derived from one request, so
// middleware wrapped around authentication can see who was authenticated.
type requestAccount struct {
	id string
}

// TrackAccount returns a context in which a later WithAccount is recorded
// for RequestAccountID
func TrackAccount(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestAccountKey, &requestAccount{})
}

// RequestAccountID returns the account authenticated anywhere below the
// TrackAccount call
func RequestAccountID(ctx context.Context) (string, bool) {
	ra, ok := ctx.Value(requestAccountKey).(*requestAccount)
	if !ok || ra.id == "" {
		return "", false
	}
	return ra.id, true
}

// WithAccount stores the authenticated account and its ID and email in ctx
func WithAccount(ctx context.Context, account *repository.Account) context.Context {
	if ra, ok := ctx.Value(requestAccountKey).(*requestAccount); ok {
		ra.id = account.ID.String()
	}
	ctx = context.WithValue(ctx, AccountKey, account)
	ctx = context.WithValue(ctx, AccountIDKey, account.ID.String())
	return context.WithValue(ctx, EmailKey, account.Email)
}

// ExtractAccount extracts the authenticated account from the request context
func ExtractAccount(ctx context.Context) (*repository.Account, bool) {
	account, ok := ctx.Value(AccountKey).(*repository.Account)
	return account, ok && account != nil
}

// ExtractAccountID extracts the account ID from the request context
func ExtractAccountID(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(AccountIDKey).(string)
	return accountID, ok
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}
