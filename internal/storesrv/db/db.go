// Package db provides the database access layer for the store service. It
// defines two interfaces:
//   - TenantRegistry: the durable catalog of known tenants
//   - ConnectionManager: per-unit-of-work schema routing on the connection
//
// A unit of work checks out one routed connection via ConnCtx, carries it in
// its context, and releases it when the unit of work ends. The connection is
// used from a single goroutine only.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/db/dbmanager"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/db/postgresql"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// TenantRegistry handles all registry operations. Lookups are backed by
// unique indexes and safe to call concurrently; every mutation carries the
// caller's version and fails with dberror.ErrConcurrentModification when
// the stored version differs.
type TenantRegistry interface {
	Insert(ctx context.Context, tenant *models.Tenant) apperrors.Error
	GetByKey(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error)
	// GetByKeyIncludingDeleted also returns soft-deleted rows. Used by
	// decommissioning, which drops the schema of an already-deleted store.
	GetByKeyIncludingDeleted(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, apperrors.Error)
	// ExistsBySubdomain is a pre-flight optimization only: a negative result
	// is not a guarantee, the unique constraint is the arbiter.
	ExistsBySubdomain(ctx context.Context, subdomain string) (bool, apperrors.Error)
	UpdateStatus(ctx context.Context, key storecommon.TenantKey, status storecommon.TenantStatus, version int64) apperrors.Error
	UpdateSettings(ctx context.Context, key storecommon.TenantKey, settings pgtype.JSONB, version int64) apperrors.Error
	SetIdentityRefs(ctx context.Context, key storecommon.TenantKey, clientID, adminUserID string, version int64) apperrors.Error
	SoftDelete(ctx context.Context, key storecommon.TenantKey, version int64) apperrors.Error
	ListActive(ctx context.Context) ([]*models.Tenant, apperrors.Error)
}

// ConnectionManager handles schema routing for the unit of work's
// connection.
type ConnectionManager interface {
	UseSchema(ctx context.Context, schema string) error
	ResetSchema(ctx context.Context) error
	Schema() string

	// Close returns the connection to the pool.
	Close(ctx context.Context)
}

// Database combines the registry and connection management for a single
// unit of work.
type Database interface {
	TenantRegistry
	ConnectionManager
}

var pool dbmanager.RoutedDb

// Init initializes the database connection pool. Must be called once at
// startup after config is loaded.
func Init() {
	ctx := log.Logger.WithContext(context.Background())
	pg := dbmanager.NewRoutedDb(ctx, "postgresql")
	if pg == nil {
		panic("unable to create db pool")
	}
	pool = pg
}

// Conn returns a new routed connection from the pool.
func Conn(ctx context.Context) (dbmanager.RoutedConn, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
		return nil, err
	}
	return conn, nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "StoreforgeDb"

// ConnCtx checks out a connection for the current unit of work and stores
// it in the context.
func ConnCtx(ctx context.Context) (context.Context, error) {
	conn, err := Conn(ctx)
	if err != nil {
		return nil, err
	}
	return WithConn(ctx, conn), nil
}

// WithConn stores an already checked-out routed connection in the context.
// The caller owns the connection's lifecycle.
func WithConn(ctx context.Context, conn dbmanager.RoutedConn) context.Context {
	return context.WithValue(ctx, ctxDbKey, conn)
}

// UowConn adapts the unit of work's connection to the ExecContext /
// QueryContext / BeginTx surface. The connection is looked up from the
// statement's context at call time, so one UowConn value can be shared by
// long-lived components while each statement still runs on the calling
// request's connection.
type UowConn struct{}

func (UowConn) conn(ctx context.Context) (*sql.Conn, error) {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.RoutedConn); ok {
		return conn.Conn(), nil
	}
	return nil, fmt.Errorf("no database connection in context")
}

func (u UowConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c, err := u.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.ExecContext(ctx, query, args...)
}

func (u UowConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c, err := u.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.QueryContext(ctx, query, args...)
}

func (u UowConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	c, err := u.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.BeginTx(ctx, opts)
}

type storeDb struct {
	TenantRegistry
	ConnectionManager
}

// DB materializes the Database interface over the unit of work's connection
// stored in the context. Returns nil if no connection is present.
func DB(ctx context.Context) Database {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.RoutedConn); ok {
		reg, cm := postgresql.NewStoreRegistryDb(conn)
		return &storeDb{
			TenantRegistry:    reg,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}
