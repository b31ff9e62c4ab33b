package db

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/topclients/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// migration is one embedded schema step, e.g. 001_create_log_events.sql.
type migration struct {
	version string
	file    string
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. A nil logger is silent.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	return MigrateContext(context.Background(), db, logger)
}

// MigrateContext is Migrate with a context for the statements.
func MigrateContext(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) error {
	all, err := embeddedMigrations()
	if err != nil {
		return err
	}

	done, err := appliedSet(ctx, db)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		if done[m.version] {
			continue
		}
		if logger != nil {
			logger.Infow("Applying migration", "migration", m.file, "version", m.version)
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		applied++
	}

	if logger != nil && applied > 0 {
		logger.Infow("Migrations complete", "total_migrations", len(all), "applied", applied)
	}
	return nil
}

// Applied returns the recorded migration versions in order.
func Applied(ctx context.Context, db *sql.DB) ([]string, error) {
	done, err := appliedSet(ctx, db)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(done))
	for v := range done {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

func embeddedMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFS, migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var all []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		all = append(all, migration{version: version, file: name})
	}
	// 000 creates schema_migrations and must run first
	sort.Slice(all, func(i, j int) bool { return all[i].version < all[j].version })
	return all, nil
}

// appliedSet is empty on a fresh database, before 000 has run.
func appliedSet(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	var tables int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables)
	if err != nil {
		return nil, errors.Wrap(err, "check schema_migrations")
	}
	done := make(map[string]bool)
	if tables == 0 {
		return done, nil
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		done[v] = true
	}
	return done, errors.Wrap(rows.Err(), "read schema_migrations")
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) (err error) {
	body, err := migrationFS.ReadFile(path.Join(migrationDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.file)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.file)
	}
	return nil
}
