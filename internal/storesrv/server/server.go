package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/httpx"
	commonmiddleware "github.com/storeforge/storeforge/internal/common/middleware"
	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/provision"
	"github.com/storeforge/storeforge/internal/storesrv/schema"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
	"github.com/storeforge/storeforge/internal/storesrv/tenant"
)

// StoreServer hosts the admin and storefront APIs. Admin routes operate on
// the registry in the public schema; storefront routes additionally run
// tenant resolution so every query lands in the resolved store's schema.
type StoreServer struct {
	Router        *chi.Mux
	resolver      *tenant.Resolver
	orchestrator  *provision.Orchestrator
	tenantSchemas provision.SchemaManager
}

// CreateNewServer builds the server and its collaborators from the loaded
// configuration.
func CreateNewServer() (*StoreServer, error) {
	cfg := config.Config()

	tenantSchemas := schema.NewManager(
		schema.NewPgExecutor(db.UowConn{}),
		schema.NewDirSource(cfg.Migrations.TenantDir),
		"tenant",
	)

	s := &StoreServer{
		Router:        chi.NewRouter(),
		resolver:      tenant.NewResolver(tenant.NewStrategy(cfg.Resolution.Strategy), storecommon.TenantKey(cfg.Resolution.DefaultTenantKey)),
		orchestrator:  provision.NewOrchestrator(tenantSchemas, provision.NewIdentityProvider(), cfg.Defaults, cfg.Identity.AdminRole),
		tenantSchemas: tenantSchemas,
	}
	return s, nil
}

// MountHandlers wires middleware and routes.
func (s *StoreServer) MountHandlers() {
	cfg := config.Config()

	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	s.Router.Use(limitRequestBody(cfg.MaxRequestBodySize))
	if cfg.HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", cfg.Resolution.HeaderName},
			MaxAge:         300,
		}))
	}

	s.Router.Group(func(r chi.Router) {
		r.Use(db.LoadRoutedDBMiddleware)
		s.mountStoreAdminHandlers(r)
	})

	s.Router.Group(func(r chi.Router) {
		r.Use(db.LoadRoutedDBMiddleware)
		r.Use(tenant.ResolveMiddleware(s.resolver, cfg.Resolution.HeaderName))
		s.mountStorefrontHandlers(r)
	})

	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)
	s.Router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
}

// limitRequestBody caps the request body at the configured size. The
// oversize error surfaces from GetRequestData as a 413.
func limitRequestBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *StoreServer) mountStoreAdminHandlers(r chi.Router) {
	r.Post("/stores", httpx.WrapHttpRsp(s.createStore))
	r.Get("/stores", httpx.WrapHttpRsp(s.listStores))
	r.Get("/stores/{storeKey}", httpx.WrapHttpRsp(s.getStore))
	r.Put("/stores/{storeKey}/status", httpx.WrapHttpRsp(s.updateStoreStatus))
	r.Delete("/stores/{storeKey}", httpx.WrapHttpRsp(s.deleteStore))
	r.Post("/stores/{storeKey}/schema/drop", httpx.WrapHttpRsp(s.dropStoreSchema))
}

func (s *StoreServer) mountStorefrontHandlers(r chi.Router) {
	r.Get("/storefront/context", httpx.WrapHttpRsp(s.getStorefrontContext))
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *StoreServer) getVersion(w http.ResponseWriter, r *http.Request) {
	rsp := &GetVersionRsp{
		ServerVersion: "Storeforge Store Server: " + storecommon.ServerVersion,
		ApiVersion:    storecommon.ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *StoreServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("readiness check")

	ctx, err := db.ConnCtx(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("database connection failed during readiness check")
		httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	defer db.DB(ctx).Close(ctx)

	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
