package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/httpx"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/provision"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// StoreRsp is the wire representation of a registered store. The schema
// name stays internal.
type StoreRsp struct {
	TenantKey string          `json:"tenant_key"`
	Subdomain string          `json:"subdomain"`
	Status    string          `json:"status"`
	Plan      string          `json:"plan"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Version   int64           `json:"version"`
}

func storeRsp(t *models.Tenant) *StoreRsp {
	rsp := &StoreRsp{
		TenantKey: string(t.Key),
		Subdomain: t.Subdomain,
		Status:    string(t.Status),
		Plan:      t.Plan,
		Version:   t.Version,
	}
	if len(t.Settings.Bytes) > 0 {
		rsp.Settings = json.RawMessage(t.Settings.Bytes)
	}
	return rsp
}

// createStore onboards a new store end to end.
func (s *StoreServer) createStore(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := &provision.OnboardingRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}

	tenant, err := s.orchestrator.Provision(ctx, db.DB(ctx), req)
	if err != nil {
		return nil, err
	}

	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/stores/" + string(tenant.Key),
		Response:   storeRsp(tenant),
	}, nil
}

func (s *StoreServer) listStores(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	tenants, err := db.DB(ctx).ListActive(ctx)
	if err != nil {
		return nil, err
	}
	stores := make([]*StoreRsp, 0, len(tenants))
	for _, t := range tenants {
		stores = append(stores, storeRsp(t))
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]any{"stores": stores},
	}, nil
}

func (s *StoreServer) getStore(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	tenant, err := db.DB(ctx).GetByKey(ctx, storecommon.TenantKey(chi.URLParam(r, "storeKey")))
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   storeRsp(tenant),
	}, nil
}

type updateStoreStatusReq struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// updateStoreStatus moves a store along its lifecycle. The caller supplies
// the version it read; a stale version is rejected so concurrent admin
// actions cannot silently overwrite each other.
func (s *StoreServer) updateStoreStatus(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := updateStoreStatusReq{}
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}

	next := storecommon.TenantStatus(req.Status)
	if !next.Valid() {
		return nil, httpx.ErrInvalidRequest("unknown status: " + req.Status)
	}

	key := storecommon.TenantKey(chi.URLParam(r, "storeKey"))
	tenant, err := db.DB(ctx).GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !tenant.Status.CanTransitionTo(next) {
		return nil, &httpx.Error{
			Description: "illegal status transition " + string(tenant.Status) + " -> " + string(next),
			StatusCode:  http.StatusConflict,
		}
	}

	if err := db.DB(ctx).UpdateStatus(ctx, key, next, req.Version); err != nil {
		return nil, err
	}
	tenant.Status = next
	tenant.Version = req.Version + 1
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   storeRsp(tenant),
	}, nil
}

type deleteStoreReq struct {
	Version int64 `json:"version"`
}

// deleteStore soft-deletes the registry row. The physical schema stays
// behind; dropping it is a separate, explicit admin action.
func (s *StoreServer) deleteStore(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := deleteStoreReq{}
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}

	key := storecommon.TenantKey(chi.URLParam(r, "storeKey"))
	if err := db.DB(ctx).SoftDelete(ctx, key, req.Version); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("tenant_key", string(key)).Msg("store soft deleted")
	return &httpx.Response{StatusCode: http.StatusNoContent}, nil
}

// dropStoreSchema destroys the physical schema of a store that is already
// decommissioned: soft-deleted or in a terminal state. The registry row is
// untouched so the schema name can never be reassigned.
func (s *StoreServer) dropStoreSchema(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	key := storecommon.TenantKey(chi.URLParam(r, "storeKey"))
	tenant, err := db.DB(ctx).GetByKeyIncludingDeleted(ctx, key)
	if err != nil {
		return nil, err
	}
	if !tenant.Deleted && !tenant.Status.IsTerminal() {
		return nil, &httpx.Error{
			Description: "store must be deleted, suspended or failed before its schema can be dropped",
			StatusCode:  http.StatusConflict,
		}
	}

	if err := s.tenantSchemas.DropSchema(ctx, tenant.SchemaName); err != nil {
		return nil, err
	}
	return &httpx.Response{StatusCode: http.StatusNoContent}, nil
}

// getStorefrontContext reports the tenant the request resolved to. Hot-path
// smoke surface: it exercises resolution and routing without touching
// tenant tables.
func (s *StoreServer) getStorefrontContext(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	res := storecommon.GetResolution(ctx)
	if res == nil {
		return nil, httpx.ErrApplicationError("request was not resolved to a tenant")
	}

	rsp := map[string]any{
		"tenant_key": string(res.TenantKey),
		"source":     string(res.Source),
	}
	if tenant, err := db.DB(ctx).GetByKey(ctx, res.TenantKey); err == nil {
		rsp["status"] = string(tenant.Status)
		rsp["plan"] = tenant.Plan
		if len(tenant.Settings.Bytes) > 0 {
			rsp["settings"] = json.RawMessage(tenant.Settings.Bytes)
		}
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}
