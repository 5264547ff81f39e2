// Package middleware provides HTTP middleware for the account API:
// bearer authentication, per-client throttling and request logging.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	appctx "github.com/welldanyogia/account-auth/internal/context"
	"github.com/welldanyogia/account-auth/internal/logger"
)

// RequestLogger writes one structured entry per request
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a RequestLogger; a nil logger means slog.Default
func NewRequestLogger(log *slog.Logger) *RequestLogger {
	if log == nil {
		log = slog.Default()
	}
	return &RequestLogger{logger: log}
}

// Handler logs the request after next returns. The entry carries the chi
// route pattern and, on bearer routes, the authenticated account.
func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ctx := logger.SetCorrelationID(r.Context(), requestID)
		ctx = appctx.TrackAccount(ctx)
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			slog.String("correlation_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		}
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				attrs = append(attrs, slog.String("route", pattern))
			}
		}
		if accountID, ok := appctx.RequestAccountID(ctx); ok {
			attrs = append(attrs, slog.String("account_id", accountID))
		}

		switch status := ww.Status(); {
		case status >= 500:
			m.logger.Error("Request failed", attrs...)
		case status == http.StatusTooManyRequests:
			m.logger.Warn("Request throttled", attrs...)
		case status >= 400:
			m.logger.Warn("Request rejected", attrs...)
		default:
			m.logger.Info("Request served", attrs...)
		}
	})
}

// StructuredLogger adapts RequestLogger to chi's middleware signature
func StructuredLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return NewRequestLogger(log).Handler
}
