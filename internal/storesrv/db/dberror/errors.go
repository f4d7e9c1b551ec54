// Package dberror defines the error taxonomy for the registry database
// layer.
package dberror

import (
	"net/http"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

var (
	ErrDatabase      apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)

	// ErrConcurrentModification signals an optimistic-version mismatch: the
	// caller's copy of the row is stale. Callers must re-read and retry at
	// their own level, never blindly overwrite.
	ErrConcurrentModification apperrors.Error = ErrDatabase.New("concurrent modification").SetStatusCode(http.StatusConflict)
)
