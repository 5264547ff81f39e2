package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	appctx "github.com/welldanyogia/account-auth/internal/context"
)

// bearerMiddleware is a minimal stand-in for the production auth middleware
func bearerMiddleware(svc *AuthService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			account, err := svc.AuthenticateByToken(r.Context(), token)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(appctx.WithAccount(r.Context(), account)))
		})
	}
}

func newTestRouter(t *testing.T) (*chi.Mux, *testEnv) {
	env := newTestEnv(t)
	r := chi.NewRouter()
	RegisterRoutes(r, NewAuthHandler(env.service, nil), bearerMiddleware(env.service), nil)
	return r, env
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func tokenFrom(t *testing.T, resp APIResponse) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data: %#v", resp.Data)
	}
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatalf("response has no token: %#v", data)
	}
	return token
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, resp := doJSON(t, r, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "handler@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	tokenFrom(t, resp)

	rec, resp = doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "handler@example.com", Password: "secret1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	token := tokenFrom(t, resp)

	rec, resp = doJSON(t, r, http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	account := resp.Data.(map[string]interface{})["account"].(map[string]interface{})
	if account["email"] != "handler@example.com" {
		t.Errorf("me email = %v", account["email"])
	}
}

func TestHandler_RegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: "secret1", ConfirmPassword: "secret1"}, "email"},
		{"mismatch", RegisterRequest{Email: "a@example.com", Password: "secret1", ConfirmPassword: "secret2"}, "confirm_password"},
		{"weak password", RegisterRequest{Email: "a@example.com", Password: "abc", ConfirmPassword: "abc"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doJSON(t, r, http.MethodPost, "/auth/register", "", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != CodeValidationError {
				t.Fatalf("unexpected error: %#v", resp.Error)
			}
			if len(resp.Error.Details[tt.field]) == 0 {
				t.Errorf("expected details for %q, got %v", tt.field, resp.Error.Details)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestHandler_StatusMapping(t *testing.T) {
	r, env := newTestRouter(t)
	env.mustCreate(t, "map@example.com", "secret1")

	rec, resp := doJSON(t, r, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "map@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	if rec.Code != http.StatusConflict || resp.Error.Code != CodeEmailInUse {
		t.Errorf("duplicate register: status %d code %v", rec.Code, resp.Error)
	}

	// Unknown email and wrong password are indistinguishable.
	recUnknown, respUnknown := doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	recWrong, respWrong := doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "map@example.com", Password: "wrong11"})
	if recUnknown.Code != http.StatusUnauthorized || recWrong.Code != http.StatusUnauthorized {
		t.Errorf("login failures: got %d and %d, want 401", recUnknown.Code, recWrong.Code)
	}
	if respUnknown.Error.Code != respWrong.Error.Code || respUnknown.Error.Message != respWrong.Error.Message {
		t.Errorf("login failures differ: %v vs %v", respUnknown.Error, respWrong.Error)
	}

	for i := 0; i < DefaultLockoutThreshold; i++ {
		doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "map@example.com", Password: "wrong11"})
	}
	rec, resp = doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "map@example.com", Password: "secret1"})
	if rec.Code != http.StatusLocked || resp.Error.Code != CodeAccountLocked {
		t.Errorf("locked login: status %d error %v", rec.Code, resp.Error)
	}

	rec, _ = doJSON(t, r, http.MethodPost, "/auth/forgot", "", ForgotPasswordRequest{Email: "ghost@example.com"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("forgot unknown email: status %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodPost, "/auth/reset-password", "", ResetPasswordRequest{
		Email: "map@example.com", ResetToken: "guess", Password: "newpass2", ConfirmPassword: "newpass2",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("reset with wrong token: status %d, want 404", rec.Code)
	}
}

func TestHandler_ForgotAndReset(t *testing.T) {
	r, env := newTestRouter(t)
	env.mustCreate(t, "flow@example.com", "secret1")

	rec, _ := doJSON(t, r, http.MethodPost, "/auth/forgot", "", ForgotPasswordRequest{Email: "flow@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot status = %d", rec.Code)
	}
	env.service.Wait()
	resetToken := env.notifier.lastResetToken("flow@example.com")

	rec, _ = doJSON(t, r, http.MethodPost, "/auth/reset-password", "", ResetPasswordRequest{
		Email: "flow@example.com", ResetToken: resetToken, Password: "newpass2", ConfirmPassword: "newpass2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "flow@example.com", Password: "newpass2"})
	if rec.Code != http.StatusOK {
		t.Errorf("login with reset password: status %d", rec.Code)
	}
}

func TestHandler_ChangePassword(t *testing.T) {
	r, env := newTestRouter(t)
	token := env.mustCreate(t, "chg@example.com", "secret1")

	rec, _ := doJSON(t, r, http.MethodPost, "/auth/change-password", token, ChangePasswordRequest{
		CurrentPassword: "wrong11", Password: "newpass2", ConfirmPassword: "newpass2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: status %d, want 401", rec.Code)
	}

	rec, resp := doJSON(t, r, http.MethodPost, "/auth/change-password", token, ChangePasswordRequest{
		CurrentPassword: "secret1", Password: "newpass2", ConfirmPassword: "newpass2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: status %d, body %s", rec.Code, rec.Body.String())
	}
	fresh := tokenFrom(t, resp)

	if rec, _ := doJSON(t, r, http.MethodGet, "/auth/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("old token after password change: status %d, want 401", rec.Code)
	}
	if rec, _ := doJSON(t, r, http.MethodGet, "/auth/me", fresh, nil); rec.Code != http.StatusOK {
		t.Errorf("fresh token: status %d, want 200", rec.Code)
	}
}
