// Command migrate manages the accounts schema with golang-migrate. The SQL
// files are embedded in the binary; -path is only used by "create".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/welldanyogia/account-auth/internal/config"
	"github.com/welldanyogia/account-auth/internal/database"
	"github.com/welldanyogia/account-auth/internal/logger"
)

// Version is set at build time
var Version = "dev"

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultMigrationsPath   = "migrations"
)

type options struct {
	Database       config.DatabaseConfig
	MigrationsPath string
	Timeout        time.Duration
	DryRun         bool
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	var (
		migrPath = flag.String("path", envOr("MIGRATIONS_PATH", defaultMigrationsPath), "Migrations directory used by create")
		timeout  = flag.Duration("timeout", defaultMigrationTimeout, "Lock and connection timeout")
		dryRun   = flag.Bool("dry-run", false, "Show what would be done without executing")
		version  = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Roll back all or N migrations\n")
		fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair under -path\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nThe database is configured with DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and DB_SSLMODE.\n")
	}
	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{
		Database:       cfg.Database,
		MigrationsPath: *migrPath,
		Timeout:        *timeout,
		DryRun:         *dryRun,
	}

	if err := run(context.Background(), log, opts, args[0], args[1:]); err != nil {
		log.Error("Migration command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, opts options, cmd string, args []string) error {
	if cmd == "create" {
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		return createMigration(log, opts, args[0])
	}

	if opts.DryRun {
		log.Info("Dry run, nothing executed", "command", cmd, "args", args)
		return nil
	}

	m, err := openMigrator(ctx, opts)
	if err != nil {
		return err
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get version: %w", err)
	}

	switch cmd {
	case "version":
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations have been applied yet")
			return nil
		}
		log.Info("Current migration version", "version", from, "dirty", dirty)
		return nil
	case "up", "down":
		steps, err := optionalInt(args)
		if err != nil {
			return err
		}
		switch {
		case steps > 0 && cmd == "down":
			err = m.Steps(-steps)
		case steps > 0:
			err = m.Steps(steps)
		case cmd == "down":
			err = m.Down()
		default:
			err = m.Up()
		}
		return report(log, m, from, err)
	case "goto":
		if len(args) < 1 {
			return errors.New("goto requires a version number")
		}
		target, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		return report(log, m, from, m.Migrate(uint(target)))
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		target, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		if err := m.Force(target); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		log.Warn("Version forced, no migrations were run", "version", target)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func openMigrator(ctx context.Context, opts options) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := database.OpenSQLX(ctx, opts.Database)
	if err != nil {
		return nil, err
	}
	m, err := database.NewMigrator(db.DB, opts.Timeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func report(log *slog.Logger, m *migrate.Migrate, from uint, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No migrations to apply", "version", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	to, _, _ := m.Version()
	log.Info("Migration completed", "from", from, "to", to)
	return nil
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

// createMigration writes an empty up/down pair with the next sequence number
func createMigration(log *slog.Logger, opts options, name string) error {
	nextNum, err := nextMigrationNumber(opts.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to determine next migration number: %w", err)
	}

	upFile := filepath.Join(opts.MigrationsPath, fmt.Sprintf("%03d_%s.up.sql", nextNum, name))
	downFile := filepath.Join(opts.MigrationsPath, fmt.Sprintf("%03d_%s.down.sql", nextNum, name))

	if opts.DryRun {
		log.Info("Dry run, would create migration", "up", upFile, "down", downFile)
		return nil
	}

	if err := os.MkdirAll(opts.MigrationsPath, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	created := time.Now().Format(time.RFC3339)
	if err := os.WriteFile(upFile, []byte(fmt.Sprintf("-- Migration: %s\n-- Created: %s\n", name, created)), 0644); err != nil {
		return fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := os.WriteFile(downFile, []byte(fmt.Sprintf("-- Migration: %s (rollback)\n-- Created: %s\n", name, created)), 0644); err != nil {
		return fmt.Errorf("failed to create down migration: %w", err)
	}

	log.Info("Created migration files", "up", upFile, "down", downFile)
	return nil
}

func nextMigrationNumber(migrationsPath string) (int, error) {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	maxNum := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var num int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &num); err == nil && num > maxNum {
			maxNum = num
		}
	}
	return maxNum + 1, nil
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
