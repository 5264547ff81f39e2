package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	appctx "github.com/welldanyogia/account-auth/internal/context"
	"github.com/welldanyogia/account-auth/internal/logger"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// TokenResponse represents the token response
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// AccountResponse represents the account data in responses
type AccountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService *AuthService
	policy      *PasswordPolicy
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		authService: authService,
		policy:      NewPasswordPolicy(),
		logger:      log,
	}
}

// Register handles account registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	details := validateRequest(req)
	details = mergePasswordErrors(details, h.policy.Validate(req.Password))
	if len(details) > 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	token, err := h.authService.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailInUse) {
			h.writeError(w, http.StatusConflict, CodeEmailInUse, "Email in use", nil)
			return
		}
		h.internalError(w, r, "register", err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, h.tokenResponse(token))
}

// Login handles password authentication
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	if details := validateRequest(req); len(details) > 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	token, err := h.authService.AuthenticateByPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		// Unknown email and wrong password look the same to the client
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password", nil)
		case errors.Is(err, ErrLocked):
			h.writeError(w, http.StatusLocked, CodeAccountLocked, "User locked", nil)
		default:
			h.internalError(w, r, "login", err)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, h.tokenResponse(token))
}

// ForgotPassword issues a reset token and mails it to the account
// POST /api/v1/auth/forgot
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if details := validateRequest(req); len(details) > 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	if err := h.authService.GenerateResetToken(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
			return
		}
		h.internalError(w, r, "forgot password", err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Reset token sent",
	})
}

// ResetPassword sets a new password using a reset token
// POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	details := validateRequest(req)
	details = mergePasswordErrors(details, h.policy.Validate(req.Password))
	if len(details) > 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	if err := h.authService.ResetPasswordByToken(r.Context(), req.Email, req.ResetToken, req.Password); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
			return
		}
		h.internalError(w, r, "reset password", err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Password has been reset",
	})
}

// ChangePassword replaces the authenticated account's password
// POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	email, ok := appctx.ExtractEmail(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid token", nil)
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	details := validateRequest(req)
	details = mergePasswordErrors(details, h.policy.Validate(req.Password))
	if len(details) > 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	token, err := h.authService.ChangePassword(r.Context(), email, req.CurrentPassword, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPassword):
			h.writeError(w, http.StatusUnauthorized, CodeInvalidPassword, "Invalid password", nil)
		case errors.Is(err, ErrLocked):
			h.writeError(w, http.StatusLocked, CodeAccountLocked, "User locked", nil)
		case errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
		default:
			h.internalError(w, r, "change password", err)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, h.tokenResponse(token))
}

// GetMe returns the authenticated account
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	account, ok := appctx.ExtractAccount(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid token", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"account": AccountResponse{
			ID:        account.ID.String(),
			Email:     account.Email,
			CreatedAt: account.CreatedAt,
		},
	})
}

func (h *AuthHandler) tokenResponse(token string) TokenResponse {
	return TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.authService.tokens.Expiry().Seconds()),
	}
}

// decode parses the JSON body, writing a 400 on failure
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return false
	}
	return true
}

func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	logger.WithCorrelationID(r.Context(), h.logger).Error("Request failed", "action", action, "error", err)
	h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
}

// writeSuccess writes a successful JSON response
func (h *AuthHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
