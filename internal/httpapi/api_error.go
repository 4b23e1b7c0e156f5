package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/v2ray-mvp/internal/convert"
	"github.com/John-Robertt/v2ray-mvp/internal/engine"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
	"github.com/John-Robertt/v2ray-mvp/internal/probe"
	"github.com/John-Robertt/v2ray-mvp/internal/store"
	"github.com/John-Robertt/v2ray-mvp/internal/sysproxy"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// appErrorFromErr maps typed errors to a status and client payload.
func appErrorFromErr(err error) (int, model.AppError) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError
	}

	// Link content the converter rejects is a user content error => 422.
	var ce *convert.ConvertError
	if errors.As(err, &ce) {
		return http.StatusUnprocessableEntity, ce.AppError
	}

	var se *store.Error
	if errors.As(err, &se) {
		if errors.Is(se, store.ErrNotFound) {
			return http.StatusNotFound, se.AppError
		}
		return http.StatusInternalServerError, se.AppError
	}

	var pe *probe.Error
	if errors.As(err, &pe) {
		return pe.Status, pe.AppError
	}

	var ee *engine.Error
	if errors.As(err, &ee) {
		return http.StatusInternalServerError, ee.AppError
	}

	var spe *sysproxy.Error
	if errors.As(err, &spe) {
		return http.StatusInternalServerError, spe.AppError
	}

	// Fallback: internal bug.
	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	}
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, app := appErrorFromErr(err)
	WriteError(w, status, app)
}
