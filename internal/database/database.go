// Package database owns the agent's local SQLite file: schema migrations and
// the settings table every persisted preference and counter lives in.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB is the local settings database.
type DB struct {
	conn       *sql.DB
	path       string
	migrations *goose.Provider
	logger     zerolog.Logger
}

// Open opens (creating if needed) the database at path. Call Migrate before
// reading or writing settings.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// SQLite allows one writer; a single connection keeps writes in order.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &DB{
		conn:       conn,
		path:       path,
		migrations: provider,
		logger:     logger.With().Str("component", "database").Logger(),
	}, nil
}

// Conn returns the underlying connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies every pending migration and logs each one.
func (db *DB) Migrate(ctx context.Context) error {
	applied, err := db.migrations.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range applied {
		db.logger.Info().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("Applied migration")
	}

	version, err := db.Version(ctx)
	if err != nil {
		return err
	}
	db.logger.Debug().Int64("version", version).Int("applied", len(applied)).Msg("Database schema up to date")
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	r, err := db.migrations.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	db.logger.Info().Int64("version", r.Source.Version).Msg("Rolled back migration")
	return nil
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	v, err := db.migrations.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
