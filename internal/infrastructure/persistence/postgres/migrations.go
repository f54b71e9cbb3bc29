package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockID serializes migrators across instances starting together.
const migrationLockID int64 = 0x63_61_73_69_6e_6f // "casino"

// Migration is one forward-only schema change, named NNN_description.sql.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations.
type Migrator struct {
	pool       *Pool
	migrations []Migration
}

// NewMigrator loads the embedded migrations. A malformed file name is a
// build-time mistake, so it panics.
func NewMigrator(pool *Pool) *Migrator {
	migrations, err := LoadMigrations(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return &Migrator{pool: pool, migrations: migrations}
}

// LoadMigrations reads NNN_name.sql files from dir, ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("%w: bad migration file name %q", ErrMigrationFailed, e.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: version %d used by %q and %q", ErrMigrationFailed, version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Migrate applies every pending migration in a single transaction under an
// advisory lock, so concurrent instances apply each migration exactly once
// and a failure leaves the schema untouched.
func (m *Migrator) Migrate(ctx context.Context) error {
	err := m.pool.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		for _, mig := range m.migrations {
			if _, done := applied[mig.Version]; done {
				continue
			}
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("%03d_%s: %w", mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("record %d: %w", mig.Version, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return nil
}

// Status lists the known migrations with their applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	out := append([]Migration(nil), m.migrations...)
	err := m.pool.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		for i := range out {
			if at, ok := applied[out[i].Version]; ok {
				out[i].IsApplied = true
				out[i].AppliedAt = at
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func appliedVersions(ctx context.Context, tx pgx.Tx) (map[int]time.Time, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT to_regclass('schema_migrations') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	if !exists {
		return applied, nil
	}

	rows, err := tx.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}
