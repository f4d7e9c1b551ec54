package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// RoutedDb is a connection pool whose connections can be bound to a tenant
// schema for the lifetime of a unit of work.
type RoutedDb interface {
	// Conn returns a new connection from the pool with a clean search path.
	Conn(ctx context.Context) (RoutedConn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
}

// RoutedConn is a single database connection bound to at most one tenant
// schema. The connection is not concurrency safe: a unit of work checks out
// one connection, routes it, and uses it from a single goroutine. The
// registry (public) schema stays on the search path so registry lookups keep
// working while the connection is routed.
type RoutedConn interface {
	// UseSchema binds the connection to the named tenant schema.
	UseSchema(ctx context.Context, schema string) error
	// ResetSchema restores the connection's default search path.
	ResetSchema(ctx context.Context) error
	// Schema returns the currently bound schema, or "" if unrouted.
	Schema() string
	// Conn returns the underlying *sql.Conn. Do not close this directly;
	// use Close(ctx) so the search path is reset before pool reuse.
	Conn() *sql.Conn
	// Close resets the search path and returns the connection to the pool.
	Close(ctx context.Context)
}

// NewRoutedDb returns a pool for the given database type. Only postgresql
// is supported.
func NewRoutedDb(ctx context.Context, dbtype string) RoutedDb {
	switch dbtype {
	case "postgresql":
		db, err := NewPostgresqlDb()
		if err != nil || db == nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create PostgreSQL pool")
			return nil
		}
		return db
	}
	return nil
}
