package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Executor is the persistence boundary of the lifecycle manager. The
// manager decides what to apply; the executor touches the database. Each
// ApplyScript call is one atomic unit: the script and its ledger row commit
// or roll back together.
type Executor interface {
	EnsureSchema(ctx context.Context, schema string) error
	EnsureLedger(ctx context.Context, schema string) error
	DropSchema(ctx context.Context, schema string) error
	AppliedVersions(ctx context.Context, schema string) ([]int, error)
	ApplyScript(ctx context.Context, schema string, m Migration) error
}

// sqlConn is the subset of *sql.Conn and *sql.DB the executor needs.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// pgExecutor implements Executor on a PostgreSQL connection. Schema names
// have been validated by the manager before they reach this layer, and are
// still identifier-quoted on every interpolation.
type pgExecutor struct {
	conn sqlConn
}

// NewPgExecutor creates an Executor over an open connection or pool handle.
func NewPgExecutor(conn sqlConn) Executor {
	return &pgExecutor{conn: conn}
}

func (e *pgExecutor) EnsureSchema(ctx context.Context, schema string) error {
	query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schema))
	if _, err := e.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema %q: %w", schema, err)
	}
	return nil
}

func (e *pgExecutor) EnsureLedger(ctx context.Context, schema string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version    integer PRIMARY KEY,
			name       text NOT NULL,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`, pq.QuoteIdentifier(schema))
	if _, err := e.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migration ledger in %q: %w", schema, err)
	}
	return nil
}

func (e *pgExecutor) DropSchema(ctx context.Context, schema string) error {
	query := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schema))
	if _, err := e.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop schema %q: %w", schema, err)
	}
	return nil
}

func (e *pgExecutor) AppliedVersions(ctx context.Context, schema string) ([]int, error) {
	query := fmt.Sprintf(
		"SELECT version FROM %s.schema_migrations ORDER BY version",
		pq.QuoteIdentifier(schema))
	rows, err := e.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger for %q: %w", schema, err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration ledger for %q: %w", schema, err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ApplyScript runs the script and appends its ledger row in one
// transaction. The transaction-local search path makes unqualified
// statements in the script target the schema being migrated.
func (e *pgExecutor) ApplyScript(ctx context.Context, schema string, m Migration) error {
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction for %q: %w", schema, err)
	}
	defer tx.Rollback()

	setPath := fmt.Sprintf("SET LOCAL search_path TO %s, public", pq.QuoteIdentifier(schema))
	if _, err := tx.ExecContext(ctx, setPath); err != nil {
		return fmt.Errorf("failed to set search path for %q: %w", schema, err)
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("script V%d__%s failed: %w", m.Version, m.Name, err)
	}

	ledger := fmt.Sprintf(
		"INSERT INTO %s.schema_migrations (version, name) VALUES ($1, $2)",
		pq.QuoteIdentifier(schema))
	if _, err := tx.ExecContext(ctx, ledger, m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration V%d for %q: %w", m.Version, schema, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration V%d for %q: %w", m.Version, schema, err)
	}
	return nil
}
