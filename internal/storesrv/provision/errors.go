package provision

import (
	"net/http"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

var (
	ErrProvisioning apperrors.Error = apperrors.New("provisioning error").SetStatusCode(http.StatusInternalServerError)

	// ErrValidation covers malformed onboarding requests. Validation runs
	// before any resource is created, so nothing needs cleanup.
	ErrValidation apperrors.Error = ErrProvisioning.New("invalid onboarding request").SetStatusCode(http.StatusBadRequest)

	// ErrDuplicateStore is the loser's outcome of a provisioning race: the
	// registry's unique constraints decided, not the pre-flight check.
	ErrDuplicateStore apperrors.Error = ErrProvisioning.New("store already exists").SetStatusCode(http.StatusConflict)

	// ErrIdentityProvisioning wraps identity provider failures. The gateway
	// status signals the fault lies upstream.
	ErrIdentityProvisioning apperrors.Error = ErrProvisioning.New("identity provisioning failed").SetStatusCode(http.StatusBadGateway)
)
