// Package postgresql implements the store registry on PostgreSQL. Queries
// run on the unit of work's routed connection; registry tables live in the
// public schema, which stays on the search path while a connection is
// routed to a tenant schema.
package postgresql

import (
	"context"
	"database/sql"

	"github.com/storeforge/storeforge/internal/storesrv/db/dbmanager"
)

// registryManager implements the tenant registry operations.
type registryManager struct {
	c dbmanager.RoutedConn
}

func (rm *registryManager) conn() *sql.Conn {
	return rm.c.Conn()
}

func newRegistryManager(c dbmanager.RoutedConn) *registryManager {
	return &registryManager{c: c}
}

// connectionManager exposes schema routing on the unit of work's connection.
type connectionManager struct {
	c dbmanager.RoutedConn
}

func newConnectionManager(c dbmanager.RoutedConn) *connectionManager {
	return &connectionManager{c: c}
}

func (cm *connectionManager) UseSchema(ctx context.Context, schema string) error {
	return cm.c.UseSchema(ctx, schema)
}

func (cm *connectionManager) ResetSchema(ctx context.Context) error {
	return cm.c.ResetSchema(ctx)
}

func (cm *connectionManager) Schema() string {
	return cm.c.Schema()
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}

// NewStoreRegistryDb returns the registry and connection managers over a
// routed connection.
func NewStoreRegistryDb(c dbmanager.RoutedConn) (*registryManager, *connectionManager) {
	return newRegistryManager(c), newConnectionManager(c)
}
