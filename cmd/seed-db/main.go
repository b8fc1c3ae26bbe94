package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type seedFile struct {
	Categories []categoryJSON `json:"categories"`
	Users      []userJSON     `json:"users"`
}

type categoryJSON struct {
	Name     string        `json:"name"`
	Products []productJSON `json:"products"`
}

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type userJSON struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Groups    []string `json:"groups"`
	APIKeys   []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		// Key may reference environment variables, e.g. "${SHOP_SEED_KEY}".
		Key string `json:"key"`
	} `json:"api_keys"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "file", "db/seed/seed.json", "path to seed JSON file, optionally gzipped (.gz)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, pepper string) error {
	data, err := readSeedFile(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seeder := postgres.NewSeeder(pool)
	if err := seedCatalog(ctx, seeder, data.Categories); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedUsers(ctx, pool, seeder, data.Users, []byte(pepper)); err != nil {
		return errors.Wrap(err, "seed users")
	}
	return nil
}

func readSeedFile(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var data seedFile
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &data, nil
}

func seedCatalog(ctx context.Context, seeder *postgres.Seeder, categories []categoryJSON) error {
	for _, c := range categories {
		categoryID, err := seeder.UpsertCategory(ctx, c.Name)
		if err != nil {
			return err
		}
		slog.Info("upserted category", slog.String("name", c.Name), slog.Int("products", len(c.Products)))

		for _, p := range c.Products {
			id, err := seeder.UpsertProduct(ctx, categoryID, p.Name, p.Description, p.Price)
			if err != nil {
				return err
			}
			slog.Info("upserted product", slog.Int64("id", id), slog.String("name", p.Name))
		}
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, seeder *postgres.Seeder, users []userJSON, pepper []byte) error {
	members := make(map[string][]string)
	for _, u := range users {
		userID, err := seeder.UpsertUser(ctx, u.Username, u.Email, u.FirstName, u.LastName)
		if err != nil {
			return err
		}
		slog.Info("upserted user", slog.String("username", u.Username))

		for _, k := range u.APIKeys {
			key := os.ExpandEnv(k.Key)
			if key == "" {
				slog.Warn("skipping api key without a value", slog.String("id", k.ID))
				continue
			}
			if err := seeder.UpsertAPIKey(ctx, k.ID, auth.HashAPIKey(pepper, key), userID, k.Name); err != nil {
				return err
			}
			slog.Info("upserted API key", slog.String("id", k.ID), slog.String("user", u.Username))
		}
		for _, g := range u.Groups {
			members[g] = append(members[g], u.Username)
		}
	}

	groups := postgres.NewUserRepository(pool)
	for group, usernames := range members {
		if err := customer.EnsureGroupMembers(ctx, groups, group, usernames); err != nil {
			return errors.Wrapf(err, "group %s", group)
		}
		slog.Info("ensured group members", slog.String("group", group), slog.Int("count", len(usernames)))
	}
	return nil
}
