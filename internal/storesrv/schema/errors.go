package schema

import (
	"net/http"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

var (
	// ErrSchemaOperation covers create/drop failures and connectivity errors
	// surfaced by the executor. These are not retried here; retry policy
	// belongs to the caller, and CreateSchema is safe to re-invoke.
	ErrSchemaOperation apperrors.Error = apperrors.New("schema operation failed").SetStatusCode(http.StatusInternalServerError)

	// ErrMigrationFailed is returned when a migration script fails. The
	// message carries the failed version; everything applied before it
	// remains recorded in the ledger.
	ErrMigrationFailed apperrors.Error = ErrSchemaOperation.New("migration failed").SetStatusCode(http.StatusInternalServerError)

	// ErrInvalidSchemaName is returned for names outside the safe
	// identifier set. Schema names are interpolated into DDL, so this is
	// checked before any SQL is built.
	ErrInvalidSchemaName apperrors.Error = ErrSchemaOperation.New("invalid schema name").SetStatusCode(http.StatusBadRequest)

	// ErrBadMigrationSource is returned when the script directory is
	// malformed (unparseable names, duplicate versions).
	ErrBadMigrationSource apperrors.Error = ErrSchemaOperation.New("invalid migration source").SetStatusCode(http.StatusInternalServerError)
)
