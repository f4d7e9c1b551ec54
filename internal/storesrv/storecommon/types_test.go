package storecommon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSchemaName(t *testing.T) {
	tests := []struct {
		key  TenantKey
		want string
	}{
		{"acme-co", "store_acme_co"},
		{"ACME-Co", "store_acme_co"},
		{"acme", "store_acme"},
		{"north.wind trading", "store_north_wind_trading"},
		{"a--b__c", "store_a_b_c"},
		{"-edge-", "store_edge"},
		{"shop42", "store_shop42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveSchemaName(tt.key), "key %q", tt.key)
	}
}

func TestDeriveSchemaNameDeterministic(t *testing.T) {
	for _, key := range []TenantKey{"acme-co", "Big Store!", "x"} {
		first := DeriveSchemaName(key)
		second := DeriveSchemaName(key)
		assert.Equal(t, first, second)
		assert.True(t, ValidSchemaName(first), "derived name %q must be a safe identifier", first)
	}
}

func TestValidSchemaName(t *testing.T) {
	assert.True(t, ValidSchemaName("store_acme_co"))
	assert.False(t, ValidSchemaName("acme_co"), "missing prefix")
	assert.False(t, ValidSchemaName("store_acme;drop"), "unsafe characters")
	assert.False(t, ValidSchemaName("store_Acme"), "upper case")
	assert.False(t, ValidSchemaName(`store_a"b`), "quote injection")
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusCreating))
	assert.True(t, StatusCreating.CanTransitionTo(StatusProvisioning))
	assert.True(t, StatusProvisioning.CanTransitionTo(StatusActive))
	assert.True(t, StatusPending.CanTransitionTo(StatusActive), "forward skips allowed")

	// No backward transitions.
	assert.False(t, StatusActive.CanTransitionTo(StatusPending))
	assert.False(t, StatusProvisioning.CanTransitionTo(StatusCreating))

	// Terminal states reachable from any non-terminal state, then frozen.
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.True(t, StatusActive.CanTransitionTo(StatusSuspended))
	assert.False(t, StatusFailed.CanTransitionTo(StatusActive))
	assert.False(t, StatusSuspended.CanTransitionTo(StatusActive))
}

func TestResolutionContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetResolution(ctx))
	assert.Empty(t, GetSchemaName(ctx))

	res := &Resolution{TenantKey: "acme-co", SchemaName: "store_acme_co", Source: SourceHost}
	ctx = WithResolution(ctx, res)
	assert.Equal(t, res, GetResolution(ctx))
	assert.Equal(t, TenantKey("acme-co"), GetTenantKey(ctx))
	assert.Equal(t, "store_acme_co", GetSchemaName(ctx))
}
