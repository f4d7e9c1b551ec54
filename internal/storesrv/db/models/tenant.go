package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"

	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

/*
        Column          |          Type           | Nullable |      Default
------------------------+-------------------------+----------+--------------------
 tenant_id              | uuid                    | not null | uuid_generate_v4()
 tenant_key             | character varying(64)   | not null |
 subdomain              | character varying(64)   | not null |
 schema_name            | character varying(80)   | not null |
 status                 | character varying(16)   | not null |
 plan                   | character varying(32)   | not null |
 settings               | jsonb                   |          |
 identity_client_id     | character varying(128)  |          |
 identity_admin_user_id | character varying(128)  |          |
 version                | bigint                  | not null | 1
 deleted                | boolean                 | not null | false
 created_at             | timestamptz             | not null | now()
 updated_at             | timestamptz             | not null | now()

Unique indexes on tenant_key, subdomain, and schema_name. schema_name is
never reused: the row survives deletion (soft delete) so residual data in a
dropped-then-recreated schema can never resolve to a different tenant.
*/

// Tenant is a store registry row.
type Tenant struct {
	TenantID            uuid.UUID               `db:"tenant_id"`
	Key                 storecommon.TenantKey   `db:"tenant_key"`
	Subdomain           string                  `db:"subdomain"`
	SchemaName          string                  `db:"schema_name"`
	Status              storecommon.TenantStatus `db:"status"`
	Plan                string                  `db:"plan"`
	Settings            pgtype.JSONB            `db:"settings"`
	IdentityClientID    string                  `db:"identity_client_id"`
	IdentityAdminUserID string                  `db:"identity_admin_user_id"`
	Version             int64                   `db:"version"`
	Deleted             bool                    `db:"deleted"`
	CreatedAt           time.Time               `db:"created_at"`
	UpdatedAt           time.Time               `db:"updated_at"`
}
