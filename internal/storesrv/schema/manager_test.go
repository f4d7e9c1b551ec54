package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

// fakeExecutor records applied scripts per schema and can be told to fail a
// specific version.
type fakeExecutor struct {
	schemas     map[string]bool
	ledgers     map[string][]int
	failVersion int
	failEnsure  bool
	dropped     []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		schemas: make(map[string]bool),
		ledgers: make(map[string][]int),
	}
}

func (f *fakeExecutor) EnsureSchema(ctx context.Context, schema string) error {
	if f.failEnsure {
		return errors.New("connection refused")
	}
	f.schemas[schema] = true
	return nil
}

func (f *fakeExecutor) EnsureLedger(ctx context.Context, schema string) error {
	if _, ok := f.ledgers[schema]; !ok {
		f.ledgers[schema] = nil
	}
	return nil
}

func (f *fakeExecutor) DropSchema(ctx context.Context, schema string) error {
	delete(f.schemas, schema)
	delete(f.ledgers, schema)
	f.dropped = append(f.dropped, schema)
	return nil
}

func (f *fakeExecutor) AppliedVersions(ctx context.Context, schema string) ([]int, error) {
	return f.ledgers[schema], nil
}

func (f *fakeExecutor) ApplyScript(ctx context.Context, schema string, m Migration) error {
	if f.failVersion != 0 && m.Version == f.failVersion {
		return fmt.Errorf("syntax error in script V%d", m.Version)
	}
	f.ledgers[schema] = append(f.ledgers[schema], m.Version)
	return nil
}

type staticSource struct {
	migrations []Migration
}

func (s *staticSource) Load() ([]Migration, apperrors.Error) {
	return s.migrations, nil
}

func tenantSource() Source {
	return &staticSource{migrations: []Migration{
		{Version: 1, Name: "base_tables", SQL: "CREATE TABLE products ()"},
		{Version: 2, Name: "orders", SQL: "CREATE TABLE orders ()"},
		{Version: 3, Name: "indexes", SQL: "CREATE INDEX idx ON products ()"},
	}}
}

func TestCreateSchemaAppliesAllMigrationsInOrder(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	mgr := NewManager(exec, tenantSource(), "tenant")

	err := mgr.CreateSchema(ctx, "store_acme_co")
	require.Nil(t, err)
	assert.True(t, exec.schemas["store_acme_co"])
	assert.Equal(t, []int{1, 2, 3}, exec.ledgers["store_acme_co"])
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	mgr := NewManager(exec, tenantSource(), "tenant")

	require.Nil(t, mgr.CreateSchema(ctx, "store_acme_co"))
	once := append([]int(nil), exec.ledgers["store_acme_co"]...)

	// Second invocation must be a no-op success, not an error.
	require.Nil(t, mgr.CreateSchema(ctx, "store_acme_co"))
	assert.Equal(t, once, exec.ledgers["store_acme_co"])
}

func TestMigrateFailureKeepsPriorVersions(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	exec.failVersion = 3
	mgr := NewManager(exec, tenantSource(), "tenant")

	err := mgr.CreateSchema(ctx, "store_acme_co")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrMigrationFailed)
	assert.Contains(t, err.Error(), "version 3")

	// Scripts 1..2 stay recorded; 3 is not.
	assert.Equal(t, []int{1, 2}, exec.ledgers["store_acme_co"])

	// Recovery: clear the failure and re-invoke CreateSchema. Only the
	// missing script is applied.
	exec.failVersion = 0
	require.Nil(t, mgr.CreateSchema(ctx, "store_acme_co"))
	assert.Equal(t, []int{1, 2, 3}, exec.ledgers["store_acme_co"])
}

func TestMigrateSkipsVersionsAtOrBelowCurrent(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	exec.schemas["store_acme_co"] = true
	exec.ledgers["store_acme_co"] = []int{1, 2}
	mgr := NewManager(exec, tenantSource(), "tenant")

	require.Nil(t, mgr.Migrate(ctx, "store_acme_co"))
	assert.Equal(t, []int{1, 2, 3}, exec.ledgers["store_acme_co"])
}

func TestConnectivityErrorSurfacesUnretried(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	exec.failEnsure = true
	mgr := NewManager(exec, tenantSource(), "tenant")

	err := mgr.CreateSchema(ctx, "store_acme_co")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrSchemaOperation)
	assert.Contains(t, err.ErrorAll(), "connection refused")
}

func TestDropSchemaNeverCreatedIsNoOp(t *testing.T) {
	ctx := context.Background()
	exec := newFakeExecutor()
	mgr := NewManager(exec, tenantSource(), "tenant")

	err := mgr.DropSchema(ctx, "store_ghost")
	assert.Nil(t, err)
	assert.Equal(t, []string{"store_ghost"}, exec.dropped)
}

func TestRejectsUnsafeSchemaNames(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newFakeExecutor(), tenantSource(), "tenant")

	for _, name := range []string{"acme", "store_acme;drop", `store_a"b`, "store_Acme"} {
		err := mgr.CreateSchema(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidSchemaName, "name %q", name)
		err = mgr.DropSchema(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidSchemaName, "name %q", name)
	}
}

func TestDirSourceOrdersAndValidates(t *testing.T) {
	dir := t.TempDir()
	write := func(name, sql string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
	}
	write("V2__orders.sql", "CREATE TABLE orders ()")
	write("V1__base_tables.sql", "CREATE TABLE products ()")
	write("V10__later.sql", "ALTER TABLE products ADD COLUMN sku text")

	migrations, err := NewDirSource(dir).Load()
	require.Nil(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
	assert.Equal(t, "base_tables", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE products ()", migrations[0].SQL)
}

func TestDirSourceRejectsStrayFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	_, err := NewDirSource(dir).Load()
	assert.ErrorIs(t, err, ErrBadMigrationSource)
}

func TestDirSourceRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V1__a.sql"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V01__b.sql"), []byte("y"), 0o644))

	_, err := NewDirSource(dir).Load()
	assert.ErrorIs(t, err, ErrBadMigrationSource)
}
