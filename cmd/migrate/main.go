// migrate applies the SQL files under migrations/ in order, tracking
// versions and checksums in schema_migrations. Safe to run repeatedly;
// an advisory lock keeps concurrent runs out.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/config"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/db"
)

const (
	migrationsDir   = "migrations"
	advisoryLockKey = 5127304
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(context.Background(), logger); err != nil {
		logger.Fatal("migration run failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	// One migrator at a time. The lock releases with the connection.
	conn, err := acquireLock(ctx, pool)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	filenames, err := discoverMigrations()
	if err != nil {
		return err
	}
	for _, filename := range filenames {
		applied, err := applyMigration(ctx, pool, filename)
		if err != nil {
			return fmt.Errorf("migration %s: %w", filename, err)
		}
		if applied {
			logger.Info("migration applied", zap.String("file", filename))
		} else {
			logger.Info("migration already applied, skipping", zap.String("file", filename))
		}
	}

	logger.Info("all migrations processed", zap.Int("count", len(filenames)))
	return nil
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("another migrator is currently running")
	}
	return conn, nil
}

// discoverMigrations lists NNN_description.sql files sorted by version,
// rejecting duplicate version prefixes.
func discoverMigrations() ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var filenames []string
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := extractVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)
	return filenames, nil
}

func extractVersion(filename string) (string, error) {
	version, _, ok := strings.Cut(filename, "_")
	if !ok {
		return "", fmt.Errorf("invalid migration filename %s, want NNN_description.sql", filename)
	}
	return version, nil
}

// applyMigration runs one file in a transaction and records its
// checksum. Returns false when the identical version is already
// applied; a checksum mismatch on an applied version is an error.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, filename string) (bool, error) {
	version, err := extractVersion(filename)
	if err != nil {
		return false, err
	}
	sqlBytes, err := os.ReadFile(filepath.Join(migrationsDir, filename))
	if err != nil {
		return false, fmt.Errorf("read migration file: %w", err)
	}
	sum := sha256.Sum256(sqlBytes)
	checksum := hex.EncodeToString(sum[:])

	var existing string
	err = pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", version).Scan(&existing)
	switch {
	case err == nil:
		if existing != checksum {
			return false, fmt.Errorf("checksum mismatch: recorded %s, file has %s", existing, checksum)
		}
		return false, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Not applied yet.
	default:
		return false, fmt.Errorf("query schema_migrations: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return false, fmt.Errorf("execute migration: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		version, filename, checksum); err != nil {
		return false, fmt.Errorf("record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration: %w", err)
	}
	return true, nil
}
