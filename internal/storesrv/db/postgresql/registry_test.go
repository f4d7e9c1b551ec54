package postgresql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeforge/storeforge/internal/storesrv/db/dberror"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// mockRoutedConn satisfies dbmanager.RoutedConn over a sqlmock-backed
// connection so the registry SQL can be exercised without a database.
type mockRoutedConn struct {
	conn   *sql.Conn
	schema string
}

func (c *mockRoutedConn) UseSchema(_ context.Context, schema string) error {
	c.schema = schema
	return nil
}

func (c *mockRoutedConn) ResetSchema(_ context.Context) error {
	c.schema = ""
	return nil
}

func (c *mockRoutedConn) Schema() string { return c.schema }

func (c *mockRoutedConn) Conn() *sql.Conn { return c.conn }

func (c *mockRoutedConn) Close(_ context.Context) { c.conn.Close() }

func newMockRegistry(t *testing.T) (sqlmock.Sqlmock, *registryManager) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDb.Close() })

	conn, err := mockDb.Conn(context.Background())
	require.NoError(t, err)
	return mock, newRegistryManager(&mockRoutedConn{conn: conn})
}

var tenantCols = []string{
	"tenant_id", "tenant_key", "subdomain", "schema_name", "status", "plan", "settings",
	"identity_client_id", "identity_admin_user_id", "version", "deleted", "created_at", "updated_at",
}

func tenantRow(key string, status storecommon.TenantStatus, deleted bool, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(tenantCols).AddRow(
		uuid.NewString(), key, key, "store_"+key, string(status), "standard", []byte(`{}`),
		"", "", version, deleted, time.Now(), time.Now(),
	)
}

func newTenant(t *testing.T, key string) *models.Tenant {
	var settings pgtype.JSONB
	require.NoError(t, settings.Set(map[string]any{"name": "Acme"}))
	return &models.Tenant{
		Key:        storecommon.TenantKey(key),
		Subdomain:  key,
		SchemaName: "store_" + key,
		Status:     storecommon.StatusProvisioning,
		Plan:       "standard",
		Settings:   settings,
	}
}

func TestInsertReturnsStoredRow(t *testing.T) {
	mock, rm := newMockRegistry(t)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WillReturnRows(tenantRow("acme", storecommon.StatusProvisioning, false, 1))

	tenant := newTenant(t, "acme")
	err := rm.Insert(context.Background(), tenant)
	require.Nil(t, err)
	assert.Equal(t, int64(1), tenant.Version)
	assert.NotEqual(t, uuid.Nil, tenant.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConflictIsAlreadyExists(t *testing.T) {
	mock, rm := newMockRegistry(t)

	// ON CONFLICT DO NOTHING returns no row when the insert lost.
	mock.ExpectQuery(`INSERT INTO tenants`).
		WillReturnRows(sqlmock.NewRows(tenantCols))

	err := rm.Insert(context.Background(), newTenant(t, "acme"))
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusAdvancesVersion(t *testing.T) {
	mock, rm := newMockRegistry(t)

	mock.ExpectQuery(`UPDATE tenants\s+SET status`).
		WithArgs("acme", string(storecommon.StatusSuspended), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))

	err := rm.UpdateStatus(context.Background(), "acme", storecommon.StatusSuspended, 3)
	assert.Nil(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusStaleVersionIsConcurrentModification(t *testing.T) {
	mock, rm := newMockRegistry(t)

	// The CAS update matches no row; the row itself still exists.
	mock.ExpectQuery(`UPDATE tenants\s+SET status`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := rm.UpdateStatus(context.Background(), "acme", storecommon.StatusSuspended, 2)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRowIsNotFound(t *testing.T) {
	mock, rm := newMockRegistry(t)

	mock.ExpectQuery(`UPDATE tenants\s+SET status`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := rm.UpdateStatus(context.Background(), "ghost", storecommon.StatusSuspended, 1)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteStaleVersionLeavesRow(t *testing.T) {
	mock, rm := newMockRegistry(t)

	mock.ExpectQuery(`UPDATE tenants\s+SET deleted = true`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := rm.SoftDelete(context.Background(), "acme", 1)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByKeyIncludingDeletedReturnsDeletedRow(t *testing.T) {
	mock, rm := newMockRegistry(t)

	// No deleted filter: the query ends at the key predicate.
	mock.ExpectQuery(`FROM tenants\s+WHERE tenant_key = lower\(\$1\);`).
		WithArgs("acme").
		WillReturnRows(tenantRow("acme", storecommon.StatusActive, true, 5))

	tenant, err := rm.GetByKeyIncludingDeleted(context.Background(), "acme")
	require.Nil(t, err)
	assert.True(t, tenant.Deleted)
	assert.Equal(t, "store_acme", tenant.SchemaName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
