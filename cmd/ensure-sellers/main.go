// Command ensure-sellers makes sure a group exists and contains the given
// users. It is idempotent and exits non-zero listing any unknown usernames.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// userList collects repeated --user flags. Comma-separated values are split.
type userList []string

func (u *userList) String() string {
	return strings.Join(*u, ",")
}

func (u *userList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*u = append(*u, name)
		}
	}
	return nil
}

func main() {
	var (
		databaseURL string
		group       string
		users       userList
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&group, "group", "seller", "group to ensure")
	flag.Var(&users, "user", "username to add to the group (repeatable)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, group, users); err != nil {
		var missing *customer.MissingUsersError
		if errors.As(err, &missing) {
			slog.Error("some users do not exist", slog.String("group", group), slog.Any("usernames", missing.Usernames))
		} else {
			slog.Error("ensure sellers failed", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}

	slog.Info("group ready", slog.String("group", group), slog.Int("users", len(users)))
}

func run(ctx context.Context, databaseURL, group string, users []string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return customer.EnsureGroupMembers(ctx, postgres.NewUserRepository(pool), group, users)
}
