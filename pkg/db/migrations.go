package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one forward-only SQL migration file.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrationFiles reads all .sql files from dir, sorted by name.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigrations applies every migration not yet recorded in schema_migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%s - create schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%s - begin %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("%s - record %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%s - commit %s: %w", migrationsLogPrefix, m.Name, err)
		}
		count++
	}

	slog.Info(fmt.Sprintf("%s - Applied %d of %d migrations", migrationsLogPrefix, count, len(migrations)))
	return nil
}

// AppliedMigrations returns the names recorded in schema_migrations.
func AppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'schema_migrations')`,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%s - check schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied := map[string]bool{}
	if !exists {
		return applied, nil
	}

	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", migrationsLogPrefix, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s - scan applied migration: %w", migrationsLogPrefix, err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// MigrationStatus prints which migration files in migrationPath are applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return err
	}
	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}
	for _, m := range files {
		state := "pending"
		if applied[m.Name] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, m.Name)
	}
	return nil
}

// MigrationDown is not supported: migrations are forward-only.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string) error {
	fmt.Println("Migration down: not supported (migrations are forward-only). Use a database backup to roll back.")
	return nil
}
