package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Machine-readable error kinds, shared vocabulary with the socket
// layer's reject responses.
const (
	KindBadRequest       = "bad_request"
	KindNotFound         = "not_found"
	KindInternalError    = "internal_error"
	KindUnauthorized     = "unauthorized"
	KindForbidden        = "forbidden"
	KindMethodNotAllowed = "method_not_allowed"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func newApiError(code int, kind string) *ApiError {
	return &ApiError{
		StatusCode: code,
		Kind:       kind,
		Message:    strings.ToLower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, KindBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, KindNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError, KindInternalError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, KindUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, KindForbidden)
}

func NewMethodNotAllowedError() *ApiError {
	return newApiError(http.StatusMethodNotAllowed, KindMethodNotAllowed)
}
