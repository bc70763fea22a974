// Package main applies plain SQL migration files to a database outside the server.
// Files ending in .sql in the given directory run in lexical filename order, each in
// its own transaction; .down.sql files are skipped. The run stops at the first failing
// file and reports it. With -fix-dirty the tool instead clears the dirty flag that an
// interrupted golang-migrate run leaves in schema_migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db"
)

func main() {
	dir := flag.String("dir", "internal/db/migrations", "directory holding *.sql migration files")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "database connection string (defaults to the server configuration)")
	fixDirty := flag.Bool("fix-dirty", false, "clear the dirty flag in schema_migrations and exit")
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		*dsn = cfg.Database.GetDSN()
	}

	database, err := db.Connect(*dsn, 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if *fixDirty {
		if err := clearDirty(ctx, database); err != nil {
			log.Fatalf("Failed to fix dirty state: %v", err)
		}
		return
	}

	applied, err := applyDir(ctx, database, *dir)
	for _, name := range applied {
		log.Printf("applied %s", name)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("%d migration file(s) applied", len(applied))
}

// FileError names the migration file that failed
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// migrationFiles lists the up migrations of dir in lexical order
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".down.sql") {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// applyDir runs every up migration of dir in its own transaction and returns the
// names applied before the first failure.
func applyDir(ctx context.Context, database *sql.DB, dir string) ([]string, error) {
	files, err := migrationFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var applied []string
	for _, name := range files {
		body, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- operator-supplied migration directory
		if err != nil {
			return applied, &FileError{File: name, Err: err}
		}
		if err := applyOne(ctx, database, string(body)); err != nil {
			return applied, &FileError{File: name, Err: err}
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func applyOne(ctx context.Context, database *sql.DB, stmt string) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// clearDirty resets the dirty flag left behind by an interrupted migration run
func clearDirty(ctx context.Context, database *sql.DB) error {
	var version int
	var dirty bool
	if err := database.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty); err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)
	if !dirty {
		log.Println("Migration state is already clean")
		return nil
	}
	if _, err := database.ExecContext(ctx, "UPDATE schema_migrations SET dirty = false"); err != nil {
		return err
	}
	log.Printf("Cleared dirty flag at version %d", version)
	return nil
}
