// Package provision orchestrates store onboarding: validation, physical
// schema creation, identity provisioning, registry registration and
// activation. The orchestrator walks a forward-only stage sequence; a
// failed stage ends the attempt with an error naming the stage. There is no
// automatic rollback: a schema left behind by a later-stage failure is
// reported loudly and reclaimed by an operator, never silently dropped.
package provision

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/db/dberror"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/metrics"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// Registry is the slice of the tenant registry the orchestrator uses.
type Registry interface {
	Insert(ctx context.Context, tenant *models.Tenant) apperrors.Error
	GetByKey(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error)
	ExistsBySubdomain(ctx context.Context, subdomain string) (bool, apperrors.Error)
	UpdateStatus(ctx context.Context, key storecommon.TenantKey, status storecommon.TenantStatus, version int64) apperrors.Error
	UpdateSettings(ctx context.Context, key storecommon.TenantKey, settings pgtype.JSONB, version int64) apperrors.Error
	SetIdentityRefs(ctx context.Context, key storecommon.TenantKey, clientID, adminUserID string, version int64) apperrors.Error
}

// SchemaManager is the schema lifecycle surface the orchestrator needs.
type SchemaManager interface {
	CreateSchema(ctx context.Context, name string) apperrors.Error
	DropSchema(ctx context.Context, name string) apperrors.Error
}

// Provisioning stages, in execution order. The registry row does not exist
// before StageRegistering, so the uniqueness pre-check in StageValidating
// is advisory only and the insert is the true arbiter of races.
const (
	StageValidating           = "validating"
	StageSchemaCreating       = "schema_creating"
	StageIdentityProvisioning = "identity_provisioning"
	StageRegistering          = "registering"
	StageConfiguring          = "configuring"
	StageActive               = "active"
)

// Attempt records the progress of one provisioning attempt.
type Attempt struct {
	TenantKey  storecommon.TenantKey
	SchemaName string
	Stage      string
	Err        apperrors.Error
}

// OnboardingRequest is the input to store provisioning.
type OnboardingRequest struct {
	TenantKey  string `json:"tenant_key" validate:"required,min=3,max=64"`
	Subdomain  string `json:"subdomain" validate:"required,max=64,hostname_rfc1123"`
	Name       string `json:"name" validate:"required,max=128"`
	AdminEmail string `json:"admin_email" validate:"required,email"`
	Plan       string `json:"plan" validate:"omitempty,oneof=standard premium enterprise"`
	Currency   string `json:"currency" validate:"omitempty,iso4217"`
	Locale     string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// tenantKeyPattern constrains keys to lower-case alphanumerics and single
// hyphens so the derived schema name is stable and collision-free.
var tenantKeyPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// reservedSubdomains never resolve to a tenant and cannot be claimed.
var reservedSubdomains = map[string]bool{
	"www":   true,
	"api":   true,
	"admin": true,
}

// Orchestrator drives store onboarding.
type Orchestrator struct {
	schemas   SchemaManager
	identity  IdentityProvider
	defaults  config.StoreDefaults
	adminRole string
}

// NewOrchestrator creates an orchestrator with explicit collaborators and
// store defaults.
func NewOrchestrator(schemas SchemaManager, identity IdentityProvider, defaults config.StoreDefaults, adminRole string) *Orchestrator {
	return &Orchestrator{
		schemas:   schemas,
		identity:  identity,
		defaults:  defaults,
		adminRole: adminRole,
	}
}

// Provision onboards a new store end to end and returns the activated
// tenant. When two requests race on the same key or subdomain, both may
// pass validation; the registry insert decides, and the loser gets
// ErrDuplicateStore. Re-running after a failed attempt is safe: validation
// re-checks uniqueness and CreateSchema is idempotent.
func (o *Orchestrator) Provision(ctx context.Context, reg Registry, req *OnboardingRequest) (*models.Tenant, apperrors.Error) {
	attempt := &Attempt{Stage: StageValidating}
	if err := o.validateRequest(ctx, reg, req); err != nil {
		return nil, o.abort(ctx, attempt, err)
	}

	attempt.TenantKey = storecommon.TenantKey(req.TenantKey)
	attempt.SchemaName = storecommon.DeriveSchemaName(attempt.TenantKey)
	ctx = log.Ctx(ctx).With().
		Str("tenant_key", string(attempt.TenantKey)).
		Str("schema", attempt.SchemaName).
		Logger().WithContext(ctx)

	attempt.Stage = StageSchemaCreating
	if err := o.schemas.CreateSchema(ctx, attempt.SchemaName); err != nil {
		return nil, o.abort(ctx, attempt, ErrProvisioning.MsgErr("unable to create store schema", err))
	}

	attempt.Stage = StageIdentityProvisioning
	clientID, userID, err := o.provisionIdentity(ctx, attempt.TenantKey, req.AdminEmail)
	if err != nil {
		return nil, o.abort(ctx, attempt, err)
	}

	attempt.Stage = StageRegistering
	tenant, err := o.register(ctx, reg, req, attempt.SchemaName, clientID, userID)
	if err != nil {
		return nil, o.abort(ctx, attempt, err)
	}

	attempt.Stage = StageConfiguring
	if err := o.configure(ctx, reg, tenant, req); err != nil {
		o.markFailed(ctx, reg, tenant)
		return nil, o.abort(ctx, attempt, err)
	}

	attempt.Stage = StageActive
	if err := o.activate(ctx, reg, tenant); err != nil {
		o.markFailed(ctx, reg, tenant)
		return nil, o.abort(ctx, attempt, err)
	}

	metrics.ProvisioningTotal.WithLabelValues("success", "").Inc()
	log.Ctx(ctx).Info().Str("status", string(tenant.Status)).Msg("store provisioned")
	return tenant, nil
}

// abort finalizes a failed attempt: counts it, logs the orphaned schema
// when one was created but never registered or activated, and returns the
// stage's error.
func (o *Orchestrator) abort(ctx context.Context, attempt *Attempt, err apperrors.Error) apperrors.Error {
	attempt.Err = err
	metrics.ProvisioningTotal.WithLabelValues("failure", attempt.Stage).Inc()

	switch attempt.Stage {
	case StageValidating, StageSchemaCreating:
		// Nothing usable was created.
		log.Ctx(ctx).Error().Err(err).Str("stage", attempt.Stage).Msg("store provisioning failed")
	default:
		// The physical schema exists. It stays behind for out-of-band
		// reclamation; a reconciliation job must confirm no registered
		// tenant owns it before dropping.
		log.Ctx(ctx).Error().Err(err).
			Str("stage", attempt.Stage).
			Str("orphaned_schema", attempt.SchemaName).
			Msg("store provisioning failed, schema left orphaned")
	}
	return err
}

func (o *Orchestrator) validateRequest(ctx context.Context, reg Registry, req *OnboardingRequest) apperrors.Error {
	req.TenantKey = strings.ToLower(strings.TrimSpace(req.TenantKey))
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	req.Name = strings.TrimSpace(req.Name)

	if err := validate.Struct(req); err != nil {
		return ErrValidation.MsgErr("onboarding request failed validation", err)
	}
	if !tenantKeyPattern.MatchString(req.TenantKey) {
		return ErrValidation.Msg("tenant key must be lower-case alphanumerics separated by single hyphens")
	}
	if reservedSubdomains[req.Subdomain] {
		return ErrValidation.Msg("subdomain " + req.Subdomain + " is reserved")
	}

	// Advisory only: a race that slips past these checks is caught again
	// by the unique constraints at insert.
	if _, err := reg.GetByKey(ctx, storecommon.TenantKey(req.TenantKey)); err == nil {
		return ErrDuplicateStore.Msg("tenant key " + req.TenantKey + " is taken")
	} else if !errors.Is(err, dberror.ErrNotFound) {
		return ErrProvisioning.MsgErr("unable to check tenant key availability", err)
	}
	exists, err := reg.ExistsBySubdomain(ctx, req.Subdomain)
	if err != nil {
		return ErrProvisioning.MsgErr("unable to check subdomain availability", err)
	}
	if exists {
		return ErrDuplicateStore.Msg("subdomain " + req.Subdomain + " is taken")
	}
	return nil
}

func (o *Orchestrator) provisionIdentity(ctx context.Context, key storecommon.TenantKey, adminEmail string) (clientID, userID string, _ apperrors.Error) {
	clientID, err := o.identity.CreateClient(ctx, string(key))
	if err != nil {
		return "", "", ErrIdentityProvisioning.MsgErr("unable to create store client", err)
	}
	userID, err = o.identity.CreateAdminUser(ctx, string(key), adminEmail)
	if err != nil {
		return "", "", ErrIdentityProvisioning.MsgErr("unable to create store admin user", err)
	}
	if err := o.identity.AssignRole(ctx, userID, o.adminRole); err != nil {
		return "", "", ErrIdentityProvisioning.MsgErr("unable to assign admin role", err)
	}
	return clientID, userID, nil
}

// register inserts the registry row in a non-active status and records the
// identity references on it. The insert is the arbiter of concurrent
// onboarding: losing it surfaces as ErrDuplicateStore even though the
// pre-check passed.
func (o *Orchestrator) register(ctx context.Context, reg Registry, req *OnboardingRequest, schemaName, clientID, userID string) (*models.Tenant, apperrors.Error) {
	plan := req.Plan
	if plan == "" {
		plan = o.defaults.Plan
	}

	var settings pgtype.JSONB
	if err := settings.Set(map[string]any{"name": req.Name}); err != nil {
		return nil, ErrProvisioning.MsgErr("unable to encode settings", err)
	}

	tenant := &models.Tenant{
		Key:        storecommon.TenantKey(req.TenantKey),
		Subdomain:  req.Subdomain,
		SchemaName: schemaName,
		Status:     storecommon.StatusProvisioning,
		Plan:       plan,
		Settings:   settings,
	}
	if err := reg.Insert(ctx, tenant); err != nil {
		if errors.Is(err, dberror.ErrAlreadyExists) {
			return nil, ErrDuplicateStore.Msg("store key or subdomain already registered")
		}
		return nil, ErrProvisioning.MsgErr("unable to register store", err)
	}

	if err := reg.SetIdentityRefs(ctx, tenant.Key, clientID, userID, tenant.Version); err != nil {
		// The row exists now; leave it in a terminal state so it is not
		// stuck in PROVISIONING forever.
		o.markFailed(ctx, reg, tenant)
		return nil, ErrProvisioning.MsgErr("unable to record identity references", err)
	}
	tenant.Version++
	tenant.IdentityClientID = clientID
	tenant.IdentityAdminUserID = userID
	return tenant, nil
}

func (o *Orchestrator) configure(ctx context.Context, reg Registry, tenant *models.Tenant, req *OnboardingRequest) apperrors.Error {
	currency := req.Currency
	if currency == "" {
		currency = o.defaults.Currency
	}
	locale := req.Locale
	if locale == "" {
		locale = o.defaults.Locale
	}

	var settings pgtype.JSONB
	if err := settings.Set(map[string]any{
		"name":     req.Name,
		"currency": currency,
		"locale":   locale,
		"features": o.defaults.Features,
	}); err != nil {
		return ErrProvisioning.MsgErr("unable to encode settings", err)
	}

	if err := reg.UpdateSettings(ctx, tenant.Key, settings, tenant.Version); err != nil {
		return ErrProvisioning.MsgErr("unable to apply store settings", err)
	}
	tenant.Version++
	tenant.Settings = settings
	return nil
}

// activate moves the row to ACTIVE under the optimistic version check so a
// concurrent suspension cannot be silently clobbered.
func (o *Orchestrator) activate(ctx context.Context, reg Registry, tenant *models.Tenant) apperrors.Error {
	if !tenant.Status.CanTransitionTo(storecommon.StatusActive) {
		return ErrProvisioning.Msg("illegal status transition " + string(tenant.Status) + " -> " + string(storecommon.StatusActive))
	}
	if err := reg.UpdateStatus(ctx, tenant.Key, storecommon.StatusActive, tenant.Version); err != nil {
		return ErrProvisioning.MsgErr("unable to activate store", err)
	}
	tenant.Version++
	tenant.Status = storecommon.StatusActive
	return nil
}

// markFailed transitions an already-registered row to FAILED, best effort.
func (o *Orchestrator) markFailed(ctx context.Context, reg Registry, tenant *models.Tenant) {
	if err := reg.UpdateStatus(ctx, tenant.Key, storecommon.StatusFailed, tenant.Version); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("unable to mark store failed")
		return
	}
	tenant.Version++
	tenant.Status = storecommon.StatusFailed
}
