package storecommon

import (
	"context"
)

// ctxKeyType is the type for all context keys in this package.
type ctxKeyType string

const (
	ctxResolutionKey ctxKeyType = "StoreResolution"
	ctxTestKey       ctxKeyType = "StoreTestContext"
)

// ResolutionSource identifies which signal resolved the tenant for a unit
// of work.
type ResolutionSource string

const (
	SourceHeader  ResolutionSource = "header"
	SourceHost    ResolutionSource = "host"
	SourceDefault ResolutionSource = "default"
)

// Resolution is the tenant selected for one unit of work. It is created
// once at the start of the request, owned by that request, and discarded
// when the request ends. It is never shared across requests or cached.
type Resolution struct {
	// TenantKey is the resolved tenant's key.
	TenantKey TenantKey
	// SchemaName is the schema all queries in this unit of work target.
	SchemaName string
	// Source records which precedence level produced the result.
	Source ResolutionSource
}

// WithResolution stores the resolution for the current unit of work.
func WithResolution(ctx context.Context, res *Resolution) context.Context {
	return context.WithValue(ctx, ctxResolutionKey, res)
}

// GetResolution retrieves the current unit of work's resolution, or nil if
// resolution has not run.
func GetResolution(ctx context.Context) *Resolution {
	if res, ok := ctx.Value(ctxResolutionKey).(*Resolution); ok {
		return res
	}
	return nil
}

// GetTenantKey returns the resolved tenant key, or "" before resolution.
func GetTenantKey(ctx context.Context) TenantKey {
	if res := GetResolution(ctx); res != nil {
		return res.TenantKey
	}
	return ""
}

// GetSchemaName returns the resolved schema name, or "" before resolution.
func GetSchemaName(ctx context.Context) string {
	if res := GetResolution(ctx); res != nil {
		return res.SchemaName
	}
	return ""
}

// WithTestContext marks the context as belonging to a test.
func WithTestContext(ctx context.Context, isTest bool) context.Context {
	return context.WithValue(ctx, ctxTestKey, isTest)
}

// GetTestContext reports whether the context belongs to a test.
func GetTestContext(ctx context.Context) bool {
	if isTest, ok := ctx.Value(ctxTestKey).(bool); ok {
		return isTest
	}
	return false
}
