package postgresql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/db/dberror"
	"github.com/storeforge/storeforge/internal/storesrv/db/models"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

const tenantColumns = `
	tenant_id, tenant_key, subdomain, schema_name, status, plan, settings,
	COALESCE(identity_client_id, ''), COALESCE(identity_admin_user_id, ''),
	version, deleted, created_at, updated_at`

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.TenantID, &t.Key, &t.Subdomain, &t.SchemaName, &t.Status, &t.Plan, &t.Settings,
		&t.IdentityClientID, &t.IdentityAdminUserID,
		&t.Version, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Insert adds a new tenant row. The unique constraints on tenant_key,
// subdomain and schema_name are the arbiter for concurrent provisioning
// attempts: losing the race surfaces as ErrAlreadyExists even when the
// caller's pre-flight existence check passed.
func (rm *registryManager) Insert(ctx context.Context, tenant *models.Tenant) apperrors.Error {
	if tenant.Key == "" || tenant.Subdomain == "" {
		return dberror.ErrInvalidInput.Msg("tenant key and subdomain are required")
	}
	if !storecommon.ValidSchemaName(tenant.SchemaName) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	if !tenant.Status.Valid() {
		return dberror.ErrInvalidInput.Msg("invalid tenant status")
	}

	tenantID := tenant.TenantID
	if tenantID == uuid.Nil {
		tenantID = uuid.New()
	}

	query := `
		INSERT INTO tenants (tenant_id, tenant_key, subdomain, schema_name, status, plan, settings, version)
		VALUES ($1, lower($2), lower($3), $4, $5, $6, $7, 1)
		ON CONFLICT DO NOTHING
		RETURNING ` + tenantColumns + `;
	`

	row := rm.conn().QueryRowContext(ctx, query,
		tenantID, string(tenant.Key), tenant.Subdomain, tenant.SchemaName,
		string(tenant.Status), tenant.Plan, tenant.Settings)

	inserted, err := scanTenant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("tenant_key", string(tenant.Key)).Msg("tenant already exists")
			return dberror.ErrAlreadyExists.Msg("tenant key, subdomain or schema already registered")
		}
		log.Ctx(ctx).Error().Err(err).Str("tenant_key", string(tenant.Key)).Msg("failed to insert tenant")
		return dberror.ErrDatabase.Err(err)
	}

	*tenant = *inserted
	return nil
}

// GetByKey retrieves a tenant by its key. Soft-deleted rows are excluded.
func (rm *registryManager) GetByKey(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error) {
	if key == "" {
		return nil, dberror.ErrInvalidInput.Msg("tenant key is required")
	}

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE tenant_key = lower($1) AND deleted = false;
	`

	tenant, err := scanTenant(rm.conn().QueryRowContext(ctx, query, string(key)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("tenant_key", string(key)).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenant, nil
}

// GetByKeyIncludingDeleted retrieves a tenant by its key regardless of the
// deleted flag. Decommissioning needs this: the physical schema of a
// soft-deleted store can still be dropped, and the row that names it
// survives deletion.
func (rm *registryManager) GetByKeyIncludingDeleted(ctx context.Context, key storecommon.TenantKey) (*models.Tenant, apperrors.Error) {
	if key == "" {
		return nil, dberror.ErrInvalidInput.Msg("tenant key is required")
	}

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE tenant_key = lower($1);
	`

	tenant, err := scanTenant(rm.conn().QueryRowContext(ctx, query, string(key)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("tenant_key", string(key)).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenant, nil
}

// GetBySubdomain retrieves a tenant by its subdomain. Soft-deleted rows are
// excluded.
func (rm *registryManager) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, apperrors.Error) {
	if subdomain == "" {
		return nil, dberror.ErrInvalidInput.Msg("subdomain is required")
	}

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE subdomain = lower($1) AND deleted = false;
	`

	tenant, err := scanTenant(rm.conn().QueryRowContext(ctx, query, subdomain))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("subdomain", subdomain).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenant, nil
}

// ExistsBySubdomain reports whether any row, including soft-deleted ones,
// holds the subdomain. Advisory only; the unique constraint decides races.
func (rm *registryManager) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, apperrors.Error) {
	if subdomain == "" {
		return false, dberror.ErrInvalidInput.Msg("subdomain is required")
	}

	query := `SELECT EXISTS (SELECT 1 FROM tenants WHERE subdomain = lower($1));`

	var exists bool
	if err := rm.conn().QueryRowContext(ctx, query, subdomain).Scan(&exists); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("subdomain", subdomain).Msg("failed to check subdomain")
		return false, dberror.ErrDatabase.Err(err)
	}
	return exists, nil
}

// UpdateStatus moves the tenant to the given status if the caller's version
// is current. A stale version fails with ErrConcurrentModification and
// leaves the row unchanged.
func (rm *registryManager) UpdateStatus(ctx context.Context, key storecommon.TenantKey, status storecommon.TenantStatus, version int64) apperrors.Error {
	if !status.Valid() {
		return dberror.ErrInvalidInput.Msg("invalid tenant status")
	}

	query := `
		UPDATE tenants
		SET status = $2, version = version + 1, updated_at = now()
		WHERE tenant_key = lower($1) AND version = $3 AND deleted = false
		RETURNING version;
	`
	return rm.versionedUpdate(ctx, key, query, string(key), string(status), version)
}

// UpdateSettings replaces the tenant's settings blob under the optimistic
// version check.
func (rm *registryManager) UpdateSettings(ctx context.Context, key storecommon.TenantKey, settings pgtype.JSONB, version int64) apperrors.Error {
	query := `
		UPDATE tenants
		SET settings = $2, version = version + 1, updated_at = now()
		WHERE tenant_key = lower($1) AND version = $3 AND deleted = false
		RETURNING version;
	`
	return rm.versionedUpdate(ctx, key, query, string(key), settings, version)
}

// SetIdentityRefs records the identity provider references on the tenant
// row under the optimistic version check.
func (rm *registryManager) SetIdentityRefs(ctx context.Context, key storecommon.TenantKey, clientID, adminUserID string, version int64) apperrors.Error {
	query := `
		UPDATE tenants
		SET identity_client_id = $2, identity_admin_user_id = $3, version = version + 1, updated_at = now()
		WHERE tenant_key = lower($1) AND version = $4 AND deleted = false
		RETURNING version;
	`
	return rm.versionedUpdate(ctx, key, query, string(key), clientID, adminUserID, version)
}

// SoftDelete marks the row deleted. The row itself is retained so the
// schema name can never be bound to another tenant identity.
func (rm *registryManager) SoftDelete(ctx context.Context, key storecommon.TenantKey, version int64) apperrors.Error {
	query := `
		UPDATE tenants
		SET deleted = true, version = version + 1, updated_at = now()
		WHERE tenant_key = lower($1) AND version = $2 AND deleted = false
		RETURNING version;
	`
	return rm.versionedUpdate(ctx, key, query, string(key), version)
}

// versionedUpdate runs a compare-and-swap style update and translates the
// no-rows outcome into NotFound or ConcurrentModification depending on
// whether the row exists.
func (rm *registryManager) versionedUpdate(ctx context.Context, key storecommon.TenantKey, query string, args ...any) apperrors.Error {
	var newVersion int64
	err := rm.conn().QueryRowContext(ctx, query, args...).Scan(&newVersion)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		log.Ctx(ctx).Error().Err(err).Str("tenant_key", string(key)).Msg("failed to update tenant")
		return dberror.ErrDatabase.Err(err)
	}

	var exists bool
	checkErr := rm.conn().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE tenant_key = lower($1) AND deleted = false);`,
		string(key)).Scan(&exists)
	if checkErr != nil {
		log.Ctx(ctx).Error().Err(checkErr).Str("tenant_key", string(key)).Msg("failed to check tenant existence")
		return dberror.ErrDatabase.Err(checkErr)
	}
	if !exists {
		return dberror.ErrNotFound.Msg("tenant not found")
	}
	log.Ctx(ctx).Info().Str("tenant_key", string(key)).Msg("stale version on tenant update")
	return dberror.ErrConcurrentModification.Msg("tenant was modified concurrently")
}

// ListActive returns all active, non-deleted tenants ordered by key.
func (rm *registryManager) ListActive(ctx context.Context) ([]*models.Tenant, apperrors.Error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE status = $1 AND deleted = false
		ORDER BY tenant_key;
	`

	rows, err := rm.conn().QueryContext(ctx, query, string(storecommon.StatusActive))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list active tenants")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		err := rows.Scan(
			&t.TenantID, &t.Key, &t.Subdomain, &t.SchemaName, &t.Status, &t.Plan, &t.Settings,
			&t.IdentityClientID, &t.IdentityAdminUserID,
			&t.Version, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan tenant row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenants, nil
}
