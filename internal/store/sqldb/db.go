// Package sqldb implements store.Store on database/sql, backed by either
// SQLite (sqlite:// and file: URLs) or Postgres (postgres:// URLs).
package sqldb

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/orion-companion/orion/internal/store"
)

var _ store.Store = (*Store)(nil)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements store.Store over a SQL database.
type Store struct {
	db       *sql.DB
	isSQLite bool
	url      string
}

// Open connects to the database named by url and pings it.
// Supported schemes: sqlite://path, file:path, postgres://…
func Open(url string) (*Store, error) {
	driver, dsn, isSQLite, err := resolveDriver(url)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if isSQLite {
		// modernc sqlite is single-writer; serialize access instead of
		// surfacing SQLITE_BUSY to callers.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, isSQLite: isSQLite, url: url}, nil
}

func resolveDriver(url string) (driver, dsn string, isSQLite bool, err error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return "sqlite", strings.TrimPrefix(url, "sqlite://"), true, nil
	case strings.HasPrefix(url, "file:"):
		return "sqlite", url, true, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, false, nil
	}
	return "", "", false, fmt.Errorf("unsupported database url %q", url)
}

// Migrate applies all pending embedded migrations.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, s.url)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}

	v, dirty, _ := m.Version()
	slog.Info("database migrated", "version", v, "dirty", dirty)
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// q rewrites $N placeholders to ? for SQLite. Queries are written in the
// Postgres dialect with strictly sequential parameters.
func (s *Store) q(query string) string {
	if !s.isSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(query[i])
			continue
		}
		if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
			b.WriteByte('?')
			i = j - 1
		}
	}
	return b.String()
}
