// Package database provides the PostgreSQL client, schema migrations, and
// health checks backing case persistence.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/faultmaven/faultmaven/ent"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver registration for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Client is the ent client plus a handle on the raw *sql.DB it runs over.
// The raw handle serves health probes, the event publisher's transactions,
// and anything else ent does not cover.
type Client struct {
	*ent.Client
	db *stdsql.DB
}

// DB exposes the underlying connection pool.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// NewClientFromEnt assembles a Client around an existing ent client. The
// test harness uses this to share one testcontainer connection.
func NewClientFromEnt(entClient *ent.Client, db *stdsql.DB) *Client {
	return &Client{Client: entClient, db: db}
}

// NewClient opens the pool, verifies connectivity, applies pending
// migrations, and returns a ready client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// ent rides the same pool through an OpenDB driver; pgx does the
	// actual wire work underneath.
	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	if err := applyMigrations(ctx, db, cfg, drv); err != nil {
		_ = entClient.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{Client: entClient, db: db}, nil
}

// applyMigrations brings the schema up to date from the SQL files baked
// into the binary with go:embed, so deployments never depend on files on
// disk. The files under pkg/database/migrations are authored against the
// ent schema, reviewed, and committed; startup applies whatever is
// pending.
func applyMigrations(ctx context.Context, db *stdsql.DB, cfg Config, drv *entsql.Driver) error {
	found, err := embeddedMigrationsPresent()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !found {
		return fmt.Errorf("no embedded migration files found — binary may be built incorrectly")
	}

	pgDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.Database, pgDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source. m.Close() would also close the postgres
	// driver, and with it the shared *sql.DB the ent client still uses.
	if err := source.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	// GIN indexes use expressions the ent schema cannot declare.
	if err := CreateGINIndexes(ctx, drv); err != nil {
		return fmt.Errorf("failed to create GIN indexes: %w", err)
	}
	return nil
}

// embeddedMigrationsPresent reports whether the embedded FS carries any
// .sql files. An empty embed means a broken build, not an empty schema.
func embeddedMigrationsPresent() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}
