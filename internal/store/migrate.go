package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Migration is one file under the migrations directory.
type Migration struct {
	Filename string
	SQL      string
}

// Migrator applies pending migrations, tracked in schema_migrations by
// filename rather than the teacher's integer schema_version: migration
// files are named NNN_description.sql but identified by their full
// name, applied in lexical order.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

// NewMigrator opens its own *sql.DB against dsn via database/sql+lib/pq,
// kept deliberately separate from Store's pgx pool: the migration runner
// is a one-shot CLI concern, not part of the long-lived application
// traffic path.
func NewMigrator(dsn, migrationsDir string, log zerolog.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open migrator connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping migrator connection: %w", err)
	}
	return &Migrator{db: db, dir: migrationsDir, log: log.With().Str("component", "migrator").Logger()}, nil
}

// Close releases the migrator's own connection.
func (m *Migrator) Close() error {
	return m.db.Close()
}

func (m *Migrator) ensureTrackingTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			migration_file TEXT NOT NULL UNIQUE,
			applied_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedFiles(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT migration_file FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// loadMigrations reads every non-down *.sql file from the migrations
// directory and sorts them in lexical filename order, matching the
// NNN-prefixed naming convention used throughout this repository.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		path := filepath.Join(m.dir, name)
		clean := filepath.Clean(path)
		if !strings.HasPrefix(clean, filepath.Clean(m.dir)) {
			return nil, fmt.Errorf("invalid migration file path: %s", name)
		}

		content, err := os.ReadFile(clean)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Filename: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Filename < migrations[j].Filename })
	return migrations, nil
}

// Migrate applies every migration not already recorded in
// schema_migrations, each inside its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := m.appliedFiles(ctx)
	if err != nil {
		return err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !applied[mig.Filename] {
			pending = append(pending, mig)
		}
	}

	if len(pending) == 0 {
		m.log.Info().Int("applied", len(applied)).Msg("database is up to date")
		return nil
	}

	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("apply migration %s: %w", mig.Filename, err)
		}
		m.log.Info().Str("file", mig.Filename).Msg("migration applied")
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute migration sql: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (migration_file) VALUES ($1) ON CONFLICT (migration_file) DO NOTHING",
		mig.Filename,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// Status reports which migrations have been applied versus which are
// still pending, for the `migrate status` CLI surface.
type MigrationStatus struct {
	Filename string
	Applied  bool
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := m.appliedFiles(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		statuses[i] = MigrationStatus{Filename: mig.Filename, Applied: applied[mig.Filename]}
	}
	return statuses, nil
}
