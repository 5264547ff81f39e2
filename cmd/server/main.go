// Command server runs the account authentication HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/welldanyogia/account-auth/internal/auth"
	"github.com/welldanyogia/account-auth/internal/config"
	"github.com/welldanyogia/account-auth/internal/database"
	"github.com/welldanyogia/account-auth/internal/health"
	"github.com/welldanyogia/account-auth/internal/logger"
	"github.com/welldanyogia/account-auth/internal/metrics"
	authmw "github.com/welldanyogia/account-auth/internal/middleware"
	"github.com/welldanyogia/account-auth/internal/notify"
	"github.com/welldanyogia/account-auth/internal/repository"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	accounts, pool, err := setupStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()

		collector := metrics.NewDBStatsCollector(metrics.PgxPoolStats(pool), log)
		collector.Start(15 * time.Second)
		defer collector.Stop()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	tokens, err := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: cfg.Token.Secret,
		Issuer: cfg.Token.Issuer,
	}, auth.SystemClock{})
	if err != nil {
		return err
	}

	authService := auth.NewAuthService(
		accounts,
		auth.NewBcryptHasher(cfg.Password.BcryptCost),
		tokens,
		newNotifier(cfg.Mail, log),
		auth.AuthServiceConfig{
			Lockout: auth.LockoutPolicy{
				Threshold: cfg.Lockout.Threshold,
				Window:    cfg.Lockout.Window,
			},
			Logger:        log,
			NotifyTimeout: cfg.Mail.Timeout,
		},
	)

	var limiter authmw.Limiter
	if redisClient != nil {
		limiter = authmw.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		memLimiter := authmw.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer memLimiter.Close()
		limiter = memLimiter
	}

	healthCfg := health.Config{Version: Version}
	if pool != nil {
		healthCfg.Database = health.PingFunc(func(ctx context.Context) error {
			return metrics.PingDatabase(ctx, pool)
		})
	}
	if redisClient != nil {
		healthCfg.RedisClient = redisClient
	}
	healthHandler := health.NewHandler(healthCfg)

	handler := newRouter(routerDeps{
		AuthService:    authService,
		Limiter:        limiter,
		Health:         healthHandler,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", addr, "storage", cfg.Storage.Driver, "mail", cfg.Mail.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info("Shutting down server", "signal", sig.String())
	}

	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Let queued welcome and reset mails finish before the process exits
	authService.Wait()

	log.Info("Server exited")
	return nil
}

// setupStorage returns the account repository selected by STORAGE_DRIVER.
// The pool is nil for the in-memory store.
func setupStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.AccountRepository, *pgxpool.Pool, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("Using in-memory account store; accounts are lost on restart")
		return repository.NewMemoryAccountRepository(), nil, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(ctx, cfg.Database, log); err != nil {
			return nil, nil, err
		}
	}

	pool, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewAccountRepository(pool), pool, nil
}

func newNotifier(cfg config.MailConfig, log *slog.Logger) auth.Notifier {
	if cfg.Driver == config.MailDriverSMTP {
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			Timeout:  cfg.Timeout,
		})
	}
	return notify.NewLogNotifier(log)
}
