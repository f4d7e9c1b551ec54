package tenant

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/httpx"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// ResolveMiddleware resolves the tenant for the request and routes the
// unit-of-work connection to the resolved schema. It runs after
// LoadRoutedDBMiddleware, once per request, before any handler touches
// tenant data. The header name is configuration, the strategy is fixed at
// startup.
func ResolveMiddleware(r *Resolver, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			d := db.DB(ctx)
			if d == nil {
				httpx.ErrApplicationError("no database connection for request").Send(w)
				return
			}

			res := r.Resolve(ctx, d, Signal{
				TenantKey: req.Header.Get(headerName),
				Host:      req.Host,
			})

			// The client may have gone away while we were looking up the
			// tenant. Do not route or dispatch a dead request.
			if ctx.Err() != nil {
				log.Ctx(ctx).Debug().Msg("request canceled during tenant resolution")
				return
			}

			if err := d.UseSchema(ctx, res.SchemaName); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("schema", res.SchemaName).
					Msg("unable to route connection to tenant schema")
				httpx.ErrApplicationError("unable to route request").Send(w)
				return
			}

			ctx = storecommon.WithResolution(ctx, res)
			log.Ctx(ctx).Debug().
				Str("tenant_key", string(res.TenantKey)).
				Str("schema", res.SchemaName).
				Str("source", string(res.Source)).
				Msg("tenant resolved")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
