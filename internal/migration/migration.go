package migration

import (
	"context"
	"database/sql"

	"counterfact/internal/errors"
)

// Execer runs a statement; *sqlx.DB and *sqlx.Tx satisfy it
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db Execer) error
	Version() string
}

// MigrationRunner handles database schema migrations. Every statement is
// idempotent so Run is safe on every start. Schema changes after 1.0.0 are
// appended as new steps guarded by IF NOT EXISTS, never edited in place.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

type step struct {
	name string
	sql  string
}

func (r *MigrationRunner) steps() []step {
	return []step{
		{"create evaluations table", `
		CREATE TABLE IF NOT EXISTS evaluations (
			id UUID PRIMARY KEY,
			scenario_id VARCHAR(255) NOT NULL,
			decision VARCHAR(16) NOT NULL,
			grade VARCHAR(16) NOT NULL,
			data_quality VARCHAR(16) NOT NULL DEFAULT 'ok',
			cas_overall DOUBLE PRECISION NOT NULL DEFAULT 0,
			delta_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			primary_method VARCHAR(16) NOT NULL,
			fingerprint CHAR(64) NOT NULL,
			row_count INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			report JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
		{"create evaluation_gates table", `
		CREATE TABLE IF NOT EXISTS evaluation_gates (
			evaluation_id UUID NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
			name VARCHAR(64) NOT NULL,
			category VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			threshold VARCHAR(32) NOT NULL,
			baseline DOUBLE PRECISION NOT NULL DEFAULT 0,
			scenario DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT,
			PRIMARY KEY (evaluation_id, name)
		)`},
		{"create scenario index", `CREATE INDEX IF NOT EXISTS idx_evaluations_scenario ON evaluations(scenario_id)`},
		{"create decision index", `CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(decision)`},
		{"create created_at index", `CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at DESC)`},
		{"create fingerprint index", `CREATE INDEX IF NOT EXISTS idx_evaluations_fingerprint ON evaluations(fingerprint)`},
		{"create gate status index", `CREATE INDEX IF NOT EXISTS idx_evaluation_gates_status ON evaluation_gates(name, status)`},
	}
}

// Run executes all database migrations in order and stops at the first failure
func (r *MigrationRunner) Run(ctx context.Context, db Execer) error {
	for _, s := range r.steps() {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to %s", s.name))
		}
	}
	return nil
}
