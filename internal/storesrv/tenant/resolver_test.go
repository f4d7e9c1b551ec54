package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/db/dberror"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

type fakeRegistry struct {
	byKey       map[storecommon.TenantKey]*models.Tenant
	bySubdomain map[string]*models.Tenant
	err         apperrors.Error

	keyLookups  int
	hostLookups int
}

func (f *fakeRegistry) GetByKey(_ context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error) {
	f.keyLookups++
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.byKey[key]; ok {
		return t, nil
	}
	return nil, dberror.ErrNotFound.Msg("tenant not found")
}

func (f *fakeRegistry) GetBySubdomain(_ context.Context, subdomain string) (*models.Tenant, apperrors.Error) {
	f.hostLookups++
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.bySubdomain[subdomain]; ok {
		return t, nil
	}
	return nil, dberror.ErrNotFound.Msg("tenant not found")
}

func newTenant(key, subdomain string, status storecommon.TenantStatus) *models.Tenant {
	return &models.Tenant{
		Key:        storecommon.TenantKey(key),
		Subdomain:  subdomain,
		SchemaName: storecommon.DeriveSchemaName(storecommon.TenantKey(key)),
		Status:     status,
	}
}

func newFakeRegistry(tenants ...*models.Tenant) *fakeRegistry {
	f := &fakeRegistry{
		byKey:       make(map[storecommon.TenantKey]*models.Tenant),
		bySubdomain: make(map[string]*models.Tenant),
	}
	for _, t := range tenants {
		f.byKey[t.Key] = t
		f.bySubdomain[t.Subdomain] = t
	}
	return f
}

func TestResolveHeaderWinsOverHost(t *testing.T) {
	reg := newFakeRegistry(
		newTenant("acme-co", "acme", storecommon.StatusActive),
		newTenant("globex", "globex", storecommon.StatusActive),
	)
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{
		TenantKey: "acme-co",
		Host:      "globex.example.com",
	})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("acme-co"), res.TenantKey)
	assert.Equal(t, "store_acme_co", res.SchemaName)
	assert.Equal(t, storecommon.SourceHeader, res.Source)
	assert.Equal(t, 0, reg.hostLookups, "host lookup should not run when the header resolves")
}

func TestResolveHostWhenNoHeader(t *testing.T) {
	reg := newFakeRegistry(newTenant("globex", "globex", storecommon.StatusActive))
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{Host: "globex.example.com:8443"})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("globex"), res.TenantKey)
	assert.Equal(t, storecommon.SourceHost, res.Source)
}

func TestResolveDefaultWhenNoSignals(t *testing.T) {
	reg := newFakeRegistry(newTenant("default-store", "shop", storecommon.StatusActive))
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{Host: "www.example.com"})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("default-store"), res.TenantKey)
	assert.Equal(t, "store_default_store", res.SchemaName)
	assert.Equal(t, storecommon.SourceDefault, res.Source)
}

func TestResolveUnknownHeaderFallsThroughToHost(t *testing.T) {
	reg := newFakeRegistry(newTenant("globex", "globex", storecommon.StatusActive))
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{
		TenantKey: "no-such-store",
		Host:      "globex.example.com",
	})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("globex"), res.TenantKey)
	assert.Equal(t, storecommon.SourceHost, res.Source)
	assert.Equal(t, 1, reg.keyLookups)
}

func TestResolveHeaderKeyIsCaseInsensitive(t *testing.T) {
	reg := newFakeRegistry(newTenant("acme-co", "acme", storecommon.StatusActive))
	r := NewResolver(NewStrategy("header"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{TenantKey: "ACME-CO"})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("acme-co"), res.TenantKey)
}

func TestResolveRegistryOutageYieldsDefault(t *testing.T) {
	reg := newFakeRegistry()
	reg.err = dberror.ErrDatabase.Msg("connection refused")
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{
		TenantKey: "acme-co",
		Host:      "acme.example.com",
	})
	require.NotNil(t, res, "resolution must never fail the request")
	assert.Equal(t, storecommon.TenantKey("default-store"), res.TenantKey)
	assert.Equal(t, storecommon.DeriveSchemaName("default-store"), res.SchemaName)
	assert.Equal(t, storecommon.SourceDefault, res.Source)
}

func TestResolveSuspendedTenantStillResolves(t *testing.T) {
	reg := newFakeRegistry(newTenant("acme-co", "acme", storecommon.StatusSuspended))
	r := NewResolver(NewStrategy("composite"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{TenantKey: "acme-co"})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.TenantKey("acme-co"), res.TenantKey, "enforcement of suspension is a handler concern, not a resolution concern")
}

func TestResolveHeaderOnlyStrategyIgnoresHost(t *testing.T) {
	reg := newFakeRegistry(newTenant("globex", "globex", storecommon.StatusActive))
	r := NewResolver(NewStrategy("header"), "default-store")

	res := r.Resolve(context.Background(), reg, Signal{Host: "globex.example.com"})
	require.NotNil(t, res)
	assert.Equal(t, storecommon.SourceDefault, res.Source)
	assert.Equal(t, 0, reg.hostLookups)
}

func TestSubdomainFromHost(t *testing.T) {
	tests := []struct {
		host string
		sub  string
		ok   bool
	}{
		{"acme.example.com", "acme", true},
		{"acme.example.com:8443", "acme", true},
		{"ACME.example.com", "acme", true},
		{"www.example.com", "", false},
		{"example.com", "", false},
		{"localhost", "", false},
		{"localhost:8080", "", false},
		{"", "", false},
		{"a.b.c.example.com", "a", true},
	}
	for _, tt := range tests {
		sub, ok := SubdomainFromHost(tt.host)
		assert.Equal(t, tt.ok, ok, "host %q", tt.host)
		assert.Equal(t, tt.sub, sub, "host %q", tt.host)
	}
}
