package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

func errorResponse(w http.ResponseWriter, status int, message any) {
	if err := writeJSON(w, status, envelope{"error": message}, nil); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// failedValidationResponse returns 422: the request was well-formed but its
// content can not be processed, so repeating it unchanged fails again.
func failedValidationResponse(w http.ResponseWriter, fields map[string]string) {
	errorResponse(w, http.StatusUnprocessableEntity, fields)
}

func badRequestResponse(w http.ResponseWriter, message any) {
	errorResponse(w, http.StatusBadRequest, message)
}

// serviceErrorResponse maps a domain error to its HTTP status and body.
func serviceErrorResponse(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		failedValidationResponse(w, verr.Fields)
		return
	}

	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "the server encountered a problem and could not process your request"
	}
	if err := writeJSON(w, status, envelope{"error": msg, "code": code}, nil); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, types.ErrTransientIO):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// logFailure keeps client mistakes at warn and reserves error for server faults.
func logFailure(ctx context.Context, l logger.Logger, msg string, err error) {
	if status, _ := classify(err); status < http.StatusInternalServerError {
		l.Warn(wrap.ErrorCtx(ctx, err), msg, "error", err)
		return
	}
	l.Error(wrap.ErrorCtx(ctx, err), msg, err)
}
