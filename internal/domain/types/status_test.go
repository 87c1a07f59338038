package types

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Table(t *testing.T) {
	valid := map[[2]TripStatus]bool{
		{StatusSearching, StatusAssigned}:   true,
		{StatusScheduled, StatusAssigned}:   true,
		{StatusAssigned, StatusArriving}:    true,
		{StatusArriving, StatusArrived}:     true,
		{StatusArrived, StatusInProgress}:   true,
		{StatusInProgress, StatusCompleted}: true,
	}
	for _, from := range AllStatuses {
		if !from.IsTerminal() {
			valid[[2]TripStatus{from, StatusCancelled}] = true
		}
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				assert.Equal(t, valid[[2]TripStatus{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestCanRequest_Roles(t *testing.T) {
	assert.True(t, CanRequest(RoleDriver, StatusSearching, StatusAssigned))
	assert.False(t, CanRequest(RoleRider, StatusSearching, StatusAssigned))
	assert.False(t, CanRequest(RoleOperator, StatusInProgress, StatusCompleted))

	for _, r := range []Role{RoleRider, RoleDriver, RoleOperator} {
		assert.True(t, CanRequest(r, StatusArriving, StatusCancelled))
	}
	assert.False(t, CanRequest(RoleOperator, StatusCompleted, StatusCancelled))
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	v := NewValidationError()
	v.Check(false, "origin", "required")
	v.Check(false, "origin", "ignored")
	v.Check(true, "kind", "never")

	err := fmt.Errorf("create: %w", v.Err())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: origin: required", v.Error())
	assert.NoError(t, NewValidationError().Err())

	assert.ErrorIs(t, &InvalidTransitionError{From: StatusCompleted, To: StatusAssigned}, ErrInvalidTransition)
	assert.ErrorIs(t, &ConflictError{TripID: "t", Expected: StatusSearching}, ErrConflict)
	assert.ErrorIs(t, ErrTripNotFound, ErrNotFound)

	var conflict *ConflictError
	assert.True(t, errors.As(fmt.Errorf("x: %w", &ConflictError{TripID: "t"}), &conflict))
	assert.Equal(t, "t", conflict.TripID)
}

func TestRolePeer(t *testing.T) {
	assert.Equal(t, RoleRider, RoleDriver.Peer())
	assert.Equal(t, RoleDriver, RoleRider.Peer())
}

func TestHasDriver(t *testing.T) {
	with := []TripStatus{StatusAssigned, StatusArriving, StatusArrived, StatusInProgress}
	for _, s := range AllStatuses {
		assert.Equal(t, slices.Contains(with, s), s.HasDriver(), s)
	}
}
