package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("requested item not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConflict            = errors.New("concurrent modification")
	ErrTransientIO         = errors.New("transient io failure")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("position request timed out")

	ErrTripNotFound     = fmt.Errorf("trip %w", ErrNotFound)
	ErrPresenceNotFound = fmt.Errorf("presence %w", ErrNotFound)
	ErrDriverNotFree    = errors.New("driver is not available")
	ErrForbidden        = errors.New("actor is not a participant of the trip")
)

// ValidationError carries per-field messages. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Check records msg for field when ok is false. The first message per field wins.
func (e *ValidationError) Check(ok bool, field, msg string) {
	if ok {
		return
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidTransitionError names the rejected edge.
type InvalidTransitionError struct {
	From   TripStatus
	To     TripStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConflictError reports a lost check-and-set: the trip moved away from Expected.
type ConflictError struct {
	TripID   string
	Expected TripStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("trip %s is no longer %s", e.TripID, e.Expected)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
