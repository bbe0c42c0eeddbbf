// Package db owns the embedded libsql database: opening, schema migration
// and pragma tuning. All persistent engine state (settings, the scheduled
// command queue) lives in this one file-backed database.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the embedded migration set rooted where goose
// expects it.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations unavailable: %v", err))
	}
	return sub
}

// Connect opens the embedded database at path, creating the file when
// needed, migrates it to the latest schema and applies the tuning pragmas.
func Connect(path string, logger zerolog.Logger) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("database not found, creating a new one")
		file, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not create database at %s: %w", path, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL", path)
	logger.Debug().Str("dsn", dsn).Msg("connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}
	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate brings db up to the latest embedded schema version.
func Migrate(db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectTurso, db, MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func initialize(db *sql.DB) error {
	if err := Migrate(db); err != nil {
		return err
	}
	return configurePragmas(db)
}

// configurePragmas applies per-connection tuning. Some pragmas answer with
// a result row, which the driver reports as an Exec error.
func configurePragmas(db *sql.DB) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"busy_timeout", "5000"},
		{"cache_size", "-64000"},
		{"temp_store", "memory"},
		{"foreign_keys", "ON"},
	}
	for _, p := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(query); err != nil {
			if strings.Contains(err.Error(), "returned rows") {
				rows, qErr := db.Query(query)
				if qErr != nil {
					return fmt.Errorf("failed to set %s: %w", p.name, qErr)
				}
				rows.Close()
				continue
			}
			return fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}
	return nil
}
