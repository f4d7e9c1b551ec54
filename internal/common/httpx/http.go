// Package httpx provides HTTP request/response handling utilities shared by
// the service routers. Handlers return a *Response or an error; the wrapper
// translates application errors into JSON error payloads with the status
// code carried by the error.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

// GetRequestData parses a JSON request body into the provided value. Only
// POST, PUT and DELETE requests may carry a body.
func GetRequestData(r *http.Request, data any) error {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			log.Ctx(r.Context()).Error().Msgf("request body too large (limit: %d bytes)", maxErr.Limit)
			return ErrRequestTooLarge(maxErr.Limit)
		}
		return ErrUnableToParseReqData()
	}
	return nil
}

// Response represents an HTTP response with a status code, an optional
// Location header value, and a JSON-serializable body.
type Response struct {
	StatusCode int
	Location   string
	Response   any
}

// RequestHandler is the handler signature used by the service routers.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler into an http.HandlerFunc, applying
// the standard error-to-JSON translation.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			sendHandlerError(w, err)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		var location []string
		if rsp.Location != "" {
			location = append(location, rsp.Location)
		}
		SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response, location...)
	}
}

func sendHandlerError(w http.ResponseWriter, err error) {
	if httperror, ok := err.(*Error); ok {
		httperror.Send(w)
		return
	}
	if appErr, ok := err.(apperrors.Error); ok {
		statusCode := appErr.StatusCode()
		if statusCode == 0 {
			statusCode = http.StatusInternalServerError
		}
		(&Error{
			StatusCode:  statusCode,
			Description: appErr.ErrorAll(),
		}).Send(w)
		return
	}
	ErrApplicationError(err.Error()).Send(w)
}
