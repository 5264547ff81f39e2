package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/welldanyogia/account-auth/internal/auth"
	appctx "github.com/welldanyogia/account-auth/internal/context"
	"github.com/welldanyogia/account-auth/internal/logger"
	"github.com/welldanyogia/account-auth/internal/repository"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TokenAuthenticator resolves a bearer token to the account it was issued for
type TokenAuthenticator interface {
	AuthenticateByToken(ctx context.Context, token string) (*repository.Account, error)
}

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	authenticator TokenAuthenticator
	logger        *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(authenticator TokenAuthenticator, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        log,
	}
}

// Authenticate validates the bearer token and loads the account it belongs to.
// Expired, tampered and stale tokens, as well as tokens for locked or
// deleted accounts, are all rejected with 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenMissing, "Authorization header is required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid authorization header format", nil)
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Token is empty", nil)
			return
		}

		account, err := m.authenticator.AuthenticateByToken(r.Context(), tokenString)
		if err != nil {
			if isTokenRejection(err) {
				writeError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid token", nil)
				return
			}
			logger.WithCorrelationID(r.Context(), m.logger).Error("Bearer authentication failed", "error", err)
			writeError(w, http.StatusInternalServerError, auth.CodeInternalError, "An unexpected error occurred", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(appctx.WithAccount(r.Context(), account)))
	})
}

func isTokenRejection(err error) bool {
	return errors.Is(err, auth.ErrTokenMalformed) ||
		errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenStale) ||
		errors.Is(err, auth.ErrLocked) ||
		errors.Is(err, auth.ErrNotFound)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractAccountID extracts the account ID from the request context
func ExtractAccountID(ctx context.Context) (string, bool) {
	return appctx.ExtractAccountID(ctx)
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	return appctx.ExtractEmail(ctx)
}
