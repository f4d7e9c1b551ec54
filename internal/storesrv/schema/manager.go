// Package schema manages the lifecycle of physical tenant schemas: creation,
// forward-only versioned migration, and destruction. Migrations for a single
// schema are strictly ordered by version; different schemas migrate
// independently and may run in parallel. Database connectivity failures are
// surfaced to the caller untouched; retry policy lives with the caller, and
// CreateSchema is idempotent so retries converge.
package schema

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/metrics"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

// validIdentifier covers schema names the manager will migrate. Tenant
// schemas additionally require the store_ prefix; the registry schema
// (public) is migrated through the same path.
var validIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Manager drives schema lifecycle for one schema category (registry or
// tenant) using one migration source.
type Manager struct {
	exec     Executor
	source   Source
	category string // metrics label: registry | tenant
}

// NewManager creates a lifecycle manager over the given executor and
// script source.
func NewManager(exec Executor, source Source, category string) *Manager {
	return &Manager{exec: exec, source: source, category: category}
}

// CreateSchema creates the physical schema if it does not exist and brings
// it to the latest migration version. Calling it again for a fully migrated
// schema is a no-op success, so onboarding retries after a transient
// failure are safe. Only tenant schemas may be created.
func (m *Manager) CreateSchema(ctx context.Context, name string) apperrors.Error {
	if !storecommon.ValidSchemaName(name) {
		return ErrInvalidSchemaName.Msg("not a tenant schema name: " + name)
	}

	if err := m.exec.EnsureSchema(ctx, name); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("schema", name).Msg("schema creation failed")
		return ErrSchemaOperation.MsgErr("unable to create schema "+name, err)
	}
	log.Ctx(ctx).Info().Str("schema", name).Msg("schema ensured")

	return m.Migrate(ctx, name)
}

// Migrate applies every script whose version exceeds the schema's highest
// recorded version, strictly ascending, each in its own atomic unit. On
// failure of a script, everything applied before it stays recorded and the
// failed version is reported; the schema is left in a recoverable
// partially-migrated state, not corruption.
func (m *Manager) Migrate(ctx context.Context, name string) apperrors.Error {
	if !validIdentifier.MatchString(name) {
		return ErrInvalidSchemaName.Msg("not a safe schema identifier: " + name)
	}

	migrations, lerr := m.source.Load()
	if lerr != nil {
		return lerr
	}

	if err := m.exec.EnsureLedger(ctx, name); err != nil {
		return ErrSchemaOperation.MsgErr("unable to prepare migration ledger for "+name, err)
	}

	applied, err := m.exec.AppliedVersions(ctx, name)
	if err != nil {
		return ErrSchemaOperation.MsgErr("unable to read migration ledger for "+name, err)
	}
	current := 0
	for _, v := range applied {
		if v > current {
			current = v
		}
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.exec.ApplyScript(ctx, name, mig); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("schema", name).
				Int("version", mig.Version).
				Msg("migration script failed")
			return ErrMigrationFailed.MsgErr(
				fmt.Sprintf("migration version %d failed for schema %s", mig.Version, name), err)
		}
		metrics.MigrationsApplied.WithLabelValues(m.category).Inc()
		log.Ctx(ctx).Info().
			Str("schema", name).
			Int("version", mig.Version).
			Str("name", mig.Name).
			Msg("migration applied")
	}

	return nil
}

// DropSchema destroys the schema and everything in it. Dropping a schema
// that was never created is a no-op success. The registry row, if any, is
// untouched. Logged at warn severity: unlike every other operation here,
// this one is irreversible.
func (m *Manager) DropSchema(ctx context.Context, name string) apperrors.Error {
	if !storecommon.ValidSchemaName(name) {
		return ErrInvalidSchemaName.Msg("not a tenant schema name: " + name)
	}

	if err := m.exec.DropSchema(ctx, name); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("schema", name).Msg("schema drop failed")
		return ErrSchemaOperation.MsgErr("unable to drop schema "+name, err)
	}

	log.Ctx(ctx).Warn().
		Str("schema", name).
		Bool("destructive", true).
		Msg("schema dropped")
	return nil
}
