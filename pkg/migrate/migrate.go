// Package migrate applies versioned SQL schema migrations.
//
// A migration run is planned before anything executes: the plan lists each
// step in order and is rejected as a whole when a step lacks SQL or the
// target version does not exist. Each step then runs in its own transaction
// together with the version bookkeeping, so the recorded version always
// matches the schema.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Latest targets the newest available migration.
const Latest = -1

var (
	// ErrUnknownVersion indicates a target version no migration defines.
	ErrUnknownVersion = errors.New("migrate: unknown target version")
	// ErrMissingSQL indicates a planned step whose up or down SQL is empty.
	ErrMissingSQL = errors.New("migrate: migration has no SQL for this direction")
	// ErrAhead indicates a database newer than every available migration.
	ErrAhead = errors.New("migrate: database version is newer than the available migrations")
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Step is one planned migration in one direction.
type Step struct {
	Migration
	Forward bool
}

// Direction returns "up" or "down".
func (s Step) Direction() string {
	if s.Forward {
		return "up"
	}
	return "down"
}

// SQL returns the statement the step runs.
func (s Step) SQL() string {
	if s.Forward {
		return s.Migration.Up
	}
	return s.Migration.Down
}

// Target is the schema version recorded once the step has run.
func (s Step) Target() int {
	if s.Forward {
		return s.Version
	}
	return s.Version - 1
}

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MigrationProvider loads migrations and keeps the version bookkeeping.
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	GetCurrentVersion(ctx context.Context, db DB) (int, error)
	SetVersion(ctx context.Context, db DB, version int) error
	CreateMigrationTable(ctx context.Context, db DB) error
}

// Migrator plans and executes migrations against one database.
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
	logger   *zap.SugaredLogger
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB, provider MigrationProvider) *Migrator {
	return &Migrator{
		db:       db,
		provider: provider,
		logger:   zap.NewNop().Sugar(),
	}
}

// SetLogger makes the migrator log every applied migration.
func (m *Migrator) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		m.logger = l
	}
}

// Version returns the current schema version, creating the bookkeeping
// table on first use.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.provider.CreateMigrationTable(ctx, m.db); err != nil {
		return 0, err
	}
	return m.provider.GetCurrentVersion(ctx, m.db)
}

// Plan lists the steps that take the database from its current version to
// target, in execution order. target may be Latest. An empty plan means the
// database is already at target.
func (m *Migrator) Plan(ctx context.Context, target int) ([]Step, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	return plan(migrations, current, target)
}

func plan(migrations []Migration, current, target int) ([]Step, error) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	newest := 0
	if len(migrations) > 0 {
		newest = migrations[len(migrations)-1].Version
	}

	if target == Latest {
		if current > newest {
			return nil, fmt.Errorf("%w: at %d, newest migration is %d", ErrAhead, current, newest)
		}
		target = newest
	}
	if target != 0 && !hasVersion(migrations, target) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, target)
	}

	var steps []Step
	if target >= current {
		for _, mg := range migrations {
			if mg.Version > current && mg.Version <= target {
				steps = append(steps, Step{Migration: mg, Forward: true})
			}
		}
	} else {
		for i := len(migrations) - 1; i >= 0; i-- {
			mg := migrations[i]
			if mg.Version > target && mg.Version <= current {
				steps = append(steps, Step{Migration: mg})
			}
		}
	}

	for _, s := range steps {
		if s.SQL() == "" {
			return nil, fmt.Errorf("%w: %d (%s) %s", ErrMissingSQL, s.Version, s.Name, s.Direction())
		}
	}
	return steps, nil
}

// hasVersion reports whether the sorted migrations define version v.
func hasVersion(migrations []Migration, v int) bool {
	i := sort.Search(len(migrations), func(i int) bool { return migrations[i].Version >= v })
	return i < len(migrations) && migrations[i].Version == v
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	return m.To(ctx, Latest)
}

// Down rolls back to target, which must be below the current version.
func (m *Migrator) Down(ctx context.Context, target int) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if target >= current {
		return fmt.Errorf("target version %d must be less than current version %d", target, current)
	}
	return m.To(ctx, target)
}

// To migrates up or down to target. Nothing runs unless the whole plan is
// valid; a failing step leaves the database at the previous step's version.
func (m *Migrator) To(ctx context.Context, target int) error {
	steps, err := m.Plan(ctx, target)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if err := m.apply(ctx, s); err != nil {
			return fmt.Errorf("migration %d %s failed: %w", s.Version, s.Direction(), err)
		}
	}
	return nil
}

// Pending returns the migrations above the current version.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	steps, err := m.Plan(ctx, Latest)
	if err != nil {
		return nil, err
	}
	pending := make([]Migration, len(steps))
	for i, s := range steps {
		pending[i] = s.Migration
	}
	return pending, nil
}

// apply runs one step and records its version in a single transaction.
func (m *Migrator) apply(ctx context.Context, s Step) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.SQL()); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.provider.SetVersion(ctx, tx, s.Target()); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.Infow("applied migration", "version", s.Version, "name", s.Name, "direction", s.Direction())
	return nil
}

// SetVersion allows manually setting the migration version (use with caution)
func (m *Migrator) SetVersion(ctx context.Context, version int) error {
	return m.provider.SetVersion(ctx, m.db, version)
}
