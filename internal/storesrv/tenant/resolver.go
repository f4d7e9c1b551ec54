// Package tenant maps an inbound unit of work to the schema it must operate
// against. Resolution follows a fixed precedence: an explicit tenant key
// header, then the request host's leading subdomain label, then the
// configured default tenant. Resolution never fails a request: a lookup
// that misses or errors degrades to the next precedence level, and the
// default tenant is the guaranteed floor. The result lives only in the
// request context and is never cached across requests, so registry changes
// take effect on the very next request.
package tenant

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/db/dberror"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/metrics"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// Registry is the lookup surface the resolver needs. Lookups are read-only
// and idempotent.
type Registry interface {
	GetByKey(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, apperrors.Error)
}

// Signal carries the tenant-identifying inputs extracted from a request.
type Signal struct {
	// TenantKey is the explicit tenant key header value, if present.
	TenantKey string
	// Host is the request host, possibly with a port.
	Host string
}

// Strategy is one resolution precedence level. A strategy returns ok=false
// when its signal is absent, matches no tenant, or its lookup errored; the
// resolver then falls through to the next level.
type Strategy interface {
	Resolve(ctx context.Context, reg Registry, sig Signal) (*storecommon.Resolution, bool)
}

// NewStrategy selects the strategy once at startup from explicit
// configuration. Known names: header, host, composite.
func NewStrategy(name string) Strategy {
	switch name {
	case "header":
		return headerStrategy{}
	case "host":
		return hostStrategy{}
	default:
		return compositeStrategy{chain: []Strategy{headerStrategy{}, hostStrategy{}}}
	}
}

// headerStrategy resolves from the explicit tenant key signal.
type headerStrategy struct{}

func (headerStrategy) Resolve(ctx context.Context, reg Registry, sig Signal) (*storecommon.Resolution, bool) {
	if sig.TenantKey == "" {
		return nil, false
	}
	t, err := reg.GetByKey(ctx, storecommon.TenantKey(strings.ToLower(sig.TenantKey)))
	if err != nil {
		degrade(ctx, storecommon.SourceHeader, sig.TenantKey, err)
		return nil, false
	}
	return &storecommon.Resolution{
		TenantKey:  t.Key,
		SchemaName: t.SchemaName,
		Source:     storecommon.SourceHeader,
	}, true
}

// hostStrategy resolves from the request host's leading subdomain label.
type hostStrategy struct{}

func (hostStrategy) Resolve(ctx context.Context, reg Registry, sig Signal) (*storecommon.Resolution, bool) {
	sub, ok := SubdomainFromHost(sig.Host)
	if !ok {
		return nil, false
	}
	t, err := reg.GetBySubdomain(ctx, sub)
	if err != nil {
		degrade(ctx, storecommon.SourceHost, sub, err)
		return nil, false
	}
	return &storecommon.Resolution{
		TenantKey:  t.Key,
		SchemaName: t.SchemaName,
		Source:     storecommon.SourceHost,
	}, true
}

// compositeStrategy tries each level in precedence order.
type compositeStrategy struct {
	chain []Strategy
}

func (s compositeStrategy) Resolve(ctx context.Context, reg Registry, sig Signal) (*storecommon.Resolution, bool) {
	for _, strat := range s.chain {
		if res, ok := strat.Resolve(ctx, reg, sig); ok {
			return res, true
		}
	}
	return nil, false
}

// degrade records a failed resolution step. A miss is routine; a registry
// I/O error is logged louder but still only degrades the step, never the
// request.
func degrade(ctx context.Context, source storecommon.ResolutionSource, signal string, err apperrors.Error) {
	if errors.Is(err, dberror.ErrNotFound) {
		metrics.ResolutionDegradedTotal.WithLabelValues(string(source), "not_found").Inc()
		log.Ctx(ctx).Debug().
			Str("source", string(source)).
			Str("signal", signal).
			Msg("tenant signal matched no registered tenant")
		return
	}
	metrics.ResolutionDegradedTotal.WithLabelValues(string(source), "lookup_error").Inc()
	log.Ctx(ctx).Warn().Err(err).
		Str("source", string(source)).
		Str("signal", signal).
		Msg("tenant lookup failed, degrading to next resolution level")
}

// Resolver resolves one unit of work to a schema name.
type Resolver struct {
	strategy   Strategy
	defaultKey storecommon.TenantKey
}

// NewResolver creates a resolver with the given strategy and default
// tenant. The default tenant must exist in the registry before the service
// accepts traffic.
func NewResolver(strategy Strategy, defaultKey storecommon.TenantKey) *Resolver {
	return &Resolver{strategy: strategy, defaultKey: defaultKey}
}

// Resolve maps the signal to a resolution. It never returns nil: when no
// precedence level resolves, the default tenant is used. The default's
// schema name comes from the registry when reachable and is derived
// deterministically otherwise, so even a registry outage yields a result.
func (r *Resolver) Resolve(ctx context.Context, reg Registry, sig Signal) *storecommon.Resolution {
	if res, ok := r.strategy.Resolve(ctx, reg, sig); ok {
		metrics.ResolutionsTotal.WithLabelValues(string(res.Source)).Inc()
		return res
	}

	schemaName := storecommon.DeriveSchemaName(r.defaultKey)
	if t, err := reg.GetByKey(ctx, r.defaultKey); err == nil {
		schemaName = t.SchemaName
	} else {
		log.Ctx(ctx).Warn().Err(err).
			Str("tenant_key", string(r.defaultKey)).
			Msg("default tenant lookup failed, using derived schema name")
	}

	metrics.ResolutionsTotal.WithLabelValues(string(storecommon.SourceDefault)).Inc()
	return &storecommon.Resolution{
		TenantKey:  r.defaultKey,
		SchemaName: schemaName,
		Source:     storecommon.SourceDefault,
	}
}

// SubdomainFromHost extracts the leading subdomain label from a host. The
// reserved label www and apex hosts (fewer than three labels) do not
// resolve.
func SubdomainFromHost(host string) (string, bool) {
	if host == "" {
		return "", false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	sub := strings.ToLower(labels[0])
	if sub == "" || sub == "www" {
		return "", false
	}
	return sub, true
}
