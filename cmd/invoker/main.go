// Package main is the entrypoint for the action-invoker (binary name "invoker").
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/action-invoker/internal/config"
	"github.com/morezero/action-invoker/internal/server"
	"github.com/morezero/action-invoker/pkg/db"
	"github.com/morezero/action-invoker/pkg/metadata"
)

const usage = `Usage: invoker [command]
       invoker serve              Start the invoker (NATS, HTTP health, invocation API).
       invoker migrate up         Run database migrations.
       invoker migrate down       Roll back one migration (not supported by all migrations).
       invoker migrate status     Show migration status.
       invoker clear              Truncate all catalog tables; schema is preserved.
       invoker seed [file]        Seed the operation catalog from a metadata JSON file.

Commands:
  serve           (default) Start the action invoker.
  migrate up      Run database migrations only.
  migrate down    Roll back last migration.
  migrate status  Show current migration status.
  clear           Truncate catalog data; schema preserved.
  seed [file]     Seed from a metadata catalog (default METADATA_FILE, then config/metadata.json).

Environment: COMMS_URL, DATABASE_URL (migrate, clear, seed; optional for serve), METADATA_FILE,
MIGRATION_PATH, INVOKER_HTTP_ADDR (default :8080), AUTO_CONFIRM. See README.

AUTO_CONFIRM answers every confirmation when no user is present. With the default
(false) precondition warnings are declined, so the strict call is not retried, and
critical operations are not executed. Set AUTO_CONFIRM=true to retry after warnings
and to run critical operations unattended.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("invoker migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("invoker migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("invoker migrate status: %v", err)
			}
		case "down":
			if err := withPool(runMigrateDown); err != nil {
				log.Fatalf("invoker migrate down: %v", err)
			}
		default:
			log.Fatalf("invoker migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("invoker clear: %v", err)
		}
		return
	case "seed":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return runSeed(ctx, cfg, pool, file)
		}); err != nil {
			log.Fatalf("invoker seed: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("invoker: %v", err)
	}
}

type dbCommand func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error

// withPool loads config, connects to DATABASE_URL and runs fn.
func withPool(fn dbCommand) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearCatalog(ctx, pool); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, file string) error {
	path := file
	if path == "" {
		path = cfg.MetadataFile
	}
	catalog, err := metadata.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := metadata.SeedDatabase(ctx, db.NewRepository(pool), catalog); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}
