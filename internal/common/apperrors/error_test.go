package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivedErrorsMatchTemplate(t *testing.T) {
	base := New("db error").SetStatusCode(http.StatusInternalServerError)
	conflict := base.New("already exists").SetStatusCode(http.StatusConflict)

	derived := conflict.Msg("store already exists")
	assert.ErrorIs(t, derived, conflict)
	assert.ErrorIs(t, derived, base)
	assert.Equal(t, http.StatusConflict, derived.StatusCode())
	assert.Equal(t, "store already exists", derived.Error())
}

func TestErrAttachesCauses(t *testing.T) {
	base := New("schema operation failed")
	cause := fmt.Errorf("connection refused")

	err := base.Err(cause)
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "schema operation failed", err.Error())
	assert.Contains(t, err.ErrorAll(), "connection refused")
}

func TestMsgErrWrapsExtraErrors(t *testing.T) {
	base := New("provisioning failed")
	inner := errors.New("identity provider unreachable")

	err := base.MsgErr("identity step failed", inner)
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "identity step failed", err.Error())
	assert.Len(t, err.UnwrapAll(), 2)
}

func TestSiblingsDoNotMatch(t *testing.T) {
	base := New("db error")
	notFound := base.New("not found")
	conflict := base.New("already exists")

	assert.NotErrorIs(t, notFound, conflict)
	assert.ErrorIs(t, notFound, base)
	assert.ErrorIs(t, conflict, base)
}

func TestStatusCodeCopyDoesNotMutate(t *testing.T) {
	base := New("base")
	with := base.SetStatusCode(http.StatusBadRequest)
	assert.Equal(t, 0, base.StatusCode())
	assert.Equal(t, http.StatusBadRequest, with.StatusCode())
}
