package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-extras/go-kit/must"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var migrationFiles = must.Must(fs.Sub(embeddedMigrations, "migrations"))

const (
	createMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	currentVersionSQL  = `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`
	recordMigrationSQL = `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`
	forgetMigrationSQL = `DELETE FROM schema_migrations WHERE version = $1`
)

var migrationFileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationStatus describes how far the database is behind the embedded migrations.
type MigrationStatus struct {
	CurrentVersion    int   `json:"current_version"`
	PendingMigrations []int `json:"pending_migrations"`
	TotalMigrations   int   `json:"total_migrations"`
}

// LoadMigrations scans fsys for NNNN_description.(up|down).sql files.
// Every version must have an up file.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	byVersion := map[int]*Migration{}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := migrationFileRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", m[1], err)
		}
		body, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", path, err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Description: m[2]}
			byVersion[version] = mig
		}
		if m[3] == "up" {
			mig.Up = string(body)
		} else {
			mig.Down = string(body)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %d (%s) has no up file", m.Version, m.Description)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator applies embedded schema migrations.
type Migrator struct {
	db         Querier
	migrations []Migration
	logger     *slog.Logger
}

// NewMigrator builds a migrator over the schema files bundled with the binary.
func NewMigrator(db Querier) (*Migrator, error) {
	migrations, err := LoadMigrations(migrationFiles)
	if err != nil {
		return nil, err
	}
	return NewMigratorWith(db, migrations), nil
}

func NewMigratorWith(db Querier, migrations []Migration) *Migrator {
	return &Migrator{db: db, migrations: migrations, logger: slog.Default()}
}

// WithLogger returns a copy of the migrator that logs to l.
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	if _, err := m.db.Exec(ctx, createMigrationsTableSQL); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}
	var version int
	if err := m.db.QueryRow(ctx, currentVersionSQL).Scan(&version); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return version, nil
}

// Status reports the applied version and the versions still pending.
func (m *Migrator) Status(ctx context.Context) (MigrationStatus, error) {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	status := MigrationStatus{CurrentVersion: current, TotalMigrations: len(m.migrations)}
	for _, mig := range m.migrations {
		if mig.Version > current {
			status.PendingMigrations = append(status.PendingMigrations, mig.Version)
		}
	}
	return status, nil
}

// MigrateUp applies every pending migration, each in its own transaction.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	m.logger.Info("migrating up", "currentVersion", current, "totalMigrations", len(m.migrations))

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		m.logger.Info("applying migration", "version", mig.Version, "description", mig.Description)
		if err := m.apply(ctx, mig); err != nil {
			return err
		}
	}

	m.logger.Info("migrations up to date")
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", mig.Version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, mig.Up); err != nil {
		return fmt.Errorf("apply migration %d: %w", mig.Version, err)
	}
	if _, err := tx.Exec(ctx, recordMigrationSQL, mig.Version, mig.Description); err != nil {
		return fmt.Errorf("record migration %d: %w", mig.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %d: %w", mig.Version, err)
	}
	return nil
}

// MigrateDown reverts the most recently applied migration. It is a no-op on an
// empty schema.
func (m *Migrator) MigrateDown(ctx context.Context) (int, error) {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		m.logger.Info("nothing to revert")
		return 0, nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return 0, fmt.Errorf("migration %d is applied but not known to this binary", current)
	}
	if target.Down == "" {
		return 0, fmt.Errorf("migration %d (%s) has no down file", target.Version, target.Description)
	}

	m.logger.Info("reverting migration", "version", target.Version, "description", target.Description)

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin revert %d: %w", target.Version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, target.Down); err != nil {
		return 0, fmt.Errorf("revert migration %d: %w", target.Version, err)
	}
	if _, err := tx.Exec(ctx, forgetMigrationSQL, target.Version); err != nil {
		return 0, fmt.Errorf("forget migration %d: %w", target.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit revert %d: %w", target.Version, err)
	}
	return target.Version, nil
}
