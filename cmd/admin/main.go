// Command admin is the operator CLI for account lockouts.
//
//	admin locked          list locked accounts
//	admin count           print the number of locked accounts
//	admin unlock EMAIL    clear the lock and failure streak of an account
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/welldanyogia/account-auth/internal/auth"
	"github.com/welldanyogia/account-auth/internal/config"
	"github.com/welldanyogia/account-auth/internal/database"
	"github.com/welldanyogia/account-auth/internal/logger"
	"github.com/welldanyogia/account-auth/internal/repository"
)

type lockedLister interface {
	ListLocked(ctx context.Context) ([]repository.LockedAccount, error)
	CountLocked(ctx context.Context) (int, error)
}

type unlocker interface {
	UnlockAccount(ctx context.Context, email string) error
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	timeout := flag.Duration("timeout", 30*time.Second, "Command timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <locked | count | unlock EMAIL>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, log, args[0], args[1:]); err != nil {
		log.Error("Admin command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, cmd string, args []string) error {
	switch cmd {
	case "locked", "count":
		db, err := database.OpenSQLX(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		store := repository.NewLockedAccountStore(db)
		if cmd == "count" {
			return printCount(ctx, os.Stdout, store)
		}
		return printLocked(ctx, os.Stdout, store)

	case "unlock":
		if len(args) != 1 {
			return errors.New("unlock requires exactly one email address")
		}
		pool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Unlocking never issues tokens, so no signing secret is needed
		svc := auth.NewAuthService(
			repository.NewAccountRepository(pool),
			auth.NewBcryptHasher(cfg.Password.BcryptCost),
			nil,
			nil,
			auth.AuthServiceConfig{Logger: log},
		)
		return unlock(ctx, os.Stdout, svc, args[0])

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printLocked(ctx context.Context, w io.Writer, lister lockedLister) error {
	accounts, err := lister.ListLocked(ctx)
	if err != nil {
		return fmt.Errorf("list locked accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No locked accounts")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tFAILURES\tLAST FAILURE")
	for _, a := range accounts {
		last := "-"
		if a.LastFailureAt != nil {
			last = a.LastFailureAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.ID, a.Email, a.FailureCount, last)
	}
	return tw.Flush()
}

func printCount(ctx context.Context, w io.Writer, lister lockedLister) error {
	n, err := lister.CountLocked(ctx)
	if err != nil {
		return fmt.Errorf("count locked accounts: %w", err)
	}
	fmt.Fprintln(w, n)
	return nil
}

func unlock(ctx context.Context, w io.Writer, svc unlocker, email string) error {
	if err := svc.UnlockAccount(ctx, email); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("no account for %s", email)
		}
		return err
	}
	fmt.Fprintf(w, "Unlocked %s\n", email)
	return nil
}
