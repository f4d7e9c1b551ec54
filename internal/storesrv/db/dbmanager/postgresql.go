// Package dbmanager manages the PostgreSQL connection pool and per-request
// schema routing. Routing a connection sets its search_path to the tenant
// schema followed by public, so every query issued during that unit of work
// transparently targets the tenant's tables while the registry stays
// reachable.
package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/storesrv/config"
)

// postgresConn is a pooled connection routed to at most one tenant schema.
type postgresConn struct {
	conn   *sql.Conn
	cancel context.CancelFunc
	schema string
	pool   *postgresPool
}

// postgresPool wraps the sql.DB pool and tracks checkout stats.
type postgresPool struct {
	connRequests uint64
	connReturns  uint64
	db           *sql.DB
}

// validSchemaRegex is the safe identifier pattern for schema names. Names
// are interpolated into SET statements and cannot be parameterized, so
// anything outside this pattern is rejected before any SQL is built.
var validSchemaRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewPostgresqlDb creates the PostgreSQL connection pool for the store
// service.
func NewPostgresqlDb() (RoutedDb, error) {
	dsn := config.RegistryDSN()

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresPool{db: sqlDB}, nil
}

// Conn checks out a connection with session timeouts applied and a clean
// search path.
func (p *postgresPool) Conn(ctx context.Context) (RoutedConn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		cancel()
		return nil, fmt.Errorf("failed to obtain database connection: %w", err)
	}

	sessionParams := map[string]string{
		"lock_timeout":                        "5s",
		"statement_timeout":                   "10s",
		"idle_in_transaction_session_timeout": "10s",
	}
	for param, value := range sessionParams {
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		if _, err := conn.ExecContext(ctx, query); err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("failed to set %s: %w", param, err)
		}
	}

	h := &postgresConn{
		conn:   conn,
		cancel: cancel,
		pool:   p,
	}

	// A pooled session may carry a search path from a previous tenant.
	if err := h.ResetSchema(ctx); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to reset search path: %w", err)
	}

	atomic.AddUint64(&p.connRequests, 1)
	return h, nil
}

// Stats returns the number of connection requests and returns.
func (p *postgresPool) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&p.connRequests), atomic.LoadUint64(&p.connReturns)
}

// OpenConns returns the number of open connections in the pool.
func (p *postgresPool) OpenConns() int {
	return p.db.Stats().OpenConnections
}

// UseSchema binds the connection to the named tenant schema by setting the
// session search_path. The registry schema remains second on the path.
func (h *postgresConn) UseSchema(ctx context.Context, schema string) error {
	if h.conn == nil {
		return fmt.Errorf("no active connection")
	}
	if !validSchemaRegex.MatchString(schema) {
		return fmt.Errorf("invalid schema name: %s", schema)
	}

	query := fmt.Sprintf("SET search_path TO %s, public", pq.QuoteIdentifier(schema))
	if _, err := h.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to set search path to %q: %w", schema, err)
	}
	h.schema = schema
	return nil
}

// ResetSchema restores the default search path.
func (h *postgresConn) ResetSchema(ctx context.Context) error {
	if h.conn == nil {
		return nil
	}
	if _, err := h.conn.ExecContext(ctx, "SET search_path TO public"); err != nil {
		return fmt.Errorf("failed to reset search path: %w", err)
	}
	h.schema = ""
	return nil
}

// Schema returns the currently bound schema name.
func (h *postgresConn) Schema() string {
	return h.schema
}

// Conn returns the underlying connection.
func (h *postgresConn) Conn() *sql.Conn {
	return h.conn
}

// Close resets the search path and returns the connection to the pool.
func (h *postgresConn) Close(ctx context.Context) {
	if h.conn == nil {
		return
	}

	if err := h.ResetSchema(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to reset search path during connection close")
	}

	h.conn.Close()
	if h.cancel != nil {
		h.cancel()
	}

	atomic.AddUint64(&h.pool.connReturns, 1)
}
