package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func TestLoadMigrationFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_parameters.sql": "CREATE TABLE b (id INT);",
		"0001_services.sql":   "CREATE TABLE a (id INT);",
		"README.md":           "not a migration",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - write %s: %v", migrationsTestPrefix, name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o755); err != nil {
		t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
	}

	got, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(got) != 2 {
		t.Fatalf("%s - expected 2 migrations, got %d", migrationsTestPrefix, len(got))
	}
	if got[0].Name != "0001_services.sql" || got[0].SQL != "CREATE TABLE a (id INT);" {
		t.Errorf("%s - first migration = %+v", migrationsTestPrefix, got[0])
	}
	if got[1].Name != "0002_parameters.sql" {
		t.Errorf("%s - second migration = %q", migrationsTestPrefix, got[1].Name)
	}
}

func TestLoadMigrationFiles_MissingDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("%s - expected error for missing directory", migrationsTestPrefix)
	}
}

func TestLoadMigrationFiles_RepositoryMigrations(t *testing.T) {
	got, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(got) == 0 {
		t.Fatalf("%s - expected at least one repository migration", migrationsTestPrefix)
	}
}
