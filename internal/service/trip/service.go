package trip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/metrics"
)

// cancelAttempts bounds re-reads when a cancel loses a race to a forward transition.
const cancelAttempts = 3

/*
Service is the trip state machine: it validates commands against the
transition table, writes through the repository check-and-set and runs
best-effort side effects after each successful write.
*/
type Service struct {
	repo     TripRepo
	presence PresenceReader
	effects  effects
	cache    *cache
	now      func() time.Time
	l        logger.Logger
}

// Deps groups the collaborators of the service. Only Repo is required.
type Deps struct {
	Repo      TripRepo
	Presence  PresenceReader
	Channels  ChannelController
	Publisher Publisher
	Notifier  Notifier
}

// New returns a new trip service with all dependencies injected.
func New(d Deps, cfg Config, l logger.Logger) *Service {
	return &Service{
		repo:     d.Repo,
		presence: d.Presence,
		effects: effects{
			channels:  d.Channels,
			publisher: d.Publisher,
			notifier:  d.Notifier,
			cfg:       cfg.withDefaults(),
			wg:        &sync.WaitGroup{},
			l:         l,
		},
		cache: newCache(),
		now:   time.Now,
		l:     l,
	}
}

// Create validates and stores a new trip in its initial status.
func (s *Service) Create(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: types.ActionTripCreate, UserID: req.RiderID.String()})
	now := s.now().UTC()

	v := types.NewValidationError()
	v.Check(req.Kind.Valid(), "kind", "must be one of immediate, scheduled, hourly, package, pooled")
	v.Check(req.RiderID != uuid.Nil, "rider_id", "must be provided")
	v.Check(req.Origin != nil, "origin", "must be provided")
	v.Check(req.Destination != nil, "destination", "must be provided")
	if req.Origin != nil {
		v.Check(req.Origin.Geo().Valid(), "origin", "lat/lng out of range")
	}
	if req.Destination != nil {
		v.Check(req.Destination.Geo().Valid(), "destination", "lat/lng out of range")
	}
	for i, stop := range req.Stops {
		v.Check(stop.Geo().Valid(), fmt.Sprintf("stops[%d]", i), "lat/lng out of range")
	}
	if req.FareEstimate != nil {
		v.Check(*req.FareEstimate >= 0, "fare_estimate", "must not be negative")
	}
	if req.Kind.Valid() {
		models.ValidateDetails(v, req.Kind, req.Details, now)
	}
	if err := v.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	details := req.Details
	if details == nil {
		details = models.ImmediateDetails{}
	}

	trip := &models.Trip{
		ID:           uuid.New(),
		Kind:         req.Kind,
		Status:       models.InitialStatus(req.Kind),
		RiderID:      req.RiderID,
		Origin:       *req.Origin,
		Destination:  *req.Destination,
		Stops:        append([]models.Point{}, req.Stops...),
		FareEstimate: req.FareEstimate,
		CreatedAt:    now,
		Details:      details,
	}

	ctx = wrap.WithTripID(ctx, trip.ID.String())
	if err := s.repo.Create(ctx, trip); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("failed to create trip: %w", err))
	}

	metrics.TripsCreatedTotal.WithLabelValues(string(trip.Kind)).Inc()
	s.cache.put(trip)
	s.l.Info(ctx, "trip created", "kind", trip.Kind, "status", trip.Status)

	s.effects.afterCreate(ctx, trip)
	return trip.Clone(), nil
}

// Get re-reads the trip from the store.
func (s *Service) Get(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	trip, err := s.repo.Get(ctx, tripID)
	if err != nil {
		return nil, wrap.Error(wrap.WithTripID(ctx, tripID.String()), err)
	}
	s.cache.put(trip)
	return trip, nil
}

// Subscribe streams snapshots of the trip after every change made through
// this service. The channel is closed once the trip reaches a terminal status.
func (s *Service) Subscribe(tripID uuid.UUID) (<-chan *models.Trip, func()) {
	return s.cache.subscribe(tripID)
}

// Cached returns the last snapshot written through this service, if any.
func (s *Service) Cached(tripID uuid.UUID) (*models.Trip, bool) {
	return s.cache.get(tripID)
}

// RequestTransition moves the trip to target on behalf of actor.
// A request for the status the trip is already in means another actor won
// the race for that edge and is reported as a conflict.
func (s *Service) RequestTransition(ctx context.Context, tripID uuid.UUID, target types.TripStatus, actor models.Actor, extra models.TransitionExtra) (*models.Trip, error) {
	if target == types.StatusCancelled {
		return s.Cancel(ctx, tripID, actor, extra.Reason)
	}

	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: types.ActionTripTransition,
		TripID: tripID.String(),
		UserID: actor.ID.String(),
	})

	trip, err := s.repo.Get(ctx, tripID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	from := trip.Status

	if err := s.checkTransition(ctx, trip, target, actor); err != nil {
		metrics.RecordTransition(string(from), string(target), err)
		return nil, wrap.Error(ctx, err)
	}

	next := trip.Clone()
	next.Status = target
	at := s.entryTime(trip)
	switch target {
	case types.StatusAssigned:
		driverID := actor.ID
		next.DriverID = &driverID
		next.AssignedAt = &at
	case types.StatusArrived:
		next.ArrivedAt = &at
	case types.StatusInProgress:
		next.StartedAt = &at
	case types.StatusCompleted:
		next.CompletedAt = &at
		if extra.FareFinal != nil {
			fare := *extra.FareFinal
			next.FareFinal = &fare
		}
	}

	updated, err := s.repo.Transition(ctx, models.Transition{
		TripID:          trip.ID,
		ExpectedStatus:  from,
		ExpectedVersion: trip.Version,
		Next:            next,
		Event:           types.EventTripStatusChanged,
		ActorID:         actor.ID,
	})
	metrics.RecordTransition(string(from), string(target), err)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	s.cache.put(updated)
	s.l.Info(ctx, "trip status changed", "from", from, "to", target)

	s.effects.afterTransition(ctx, from, updated, actor, "")
	return updated.Clone(), nil
}

func (s *Service) checkTransition(ctx context.Context, trip *models.Trip, target types.TripStatus, actor models.Actor) error {
	from := trip.Status

	if from == target && !from.IsTerminal() {
		return &types.ConflictError{TripID: trip.ID.String(), Expected: expectedSource(trip, target)}
	}
	// a driver accepting a live trip someone else already took lost the race,
	// however far the winner has moved it since
	if target == types.StatusAssigned && actor.Role == types.RoleDriver && trip.DriverID != nil && !from.IsTerminal() {
		return &types.ConflictError{TripID: trip.ID.String(), Expected: expectedSource(trip, target)}
	}
	if !types.CanTransition(from, target) {
		return &types.InvalidTransitionError{From: from, To: target}
	}
	if !types.CanRequest(actor.Role, from, target) {
		return &types.InvalidTransitionError{From: from, To: target, Reason: "not allowed for role " + actor.Role.String()}
	}

	if target != types.StatusAssigned {
		if !trip.Participant(actor.ID, actor.Role) {
			return fmt.Errorf("%w: %w", &types.InvalidTransitionError{From: from, To: target, Reason: "actor is not the assigned driver"}, types.ErrForbidden)
		}
		return nil
	}

	if s.presence == nil {
		return nil
	}

	rec, err := s.presence.GetPresence(ctx, actor.ID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return fmt.Errorf("%w: %w", &types.InvalidTransitionError{From: from, To: target, Reason: "driver has no presence"}, types.ErrDriverNotFree)
	case err != nil:
		return fmt.Errorf("failed to read driver presence: %w", err)
	case rec.OperationalStatus != types.DriverAvailable:
		return fmt.Errorf("%w: %w", &types.InvalidTransitionError{From: from, To: target, Reason: "driver is " + string(rec.OperationalStatus)}, types.ErrDriverNotFree)
	}
	return nil
}

// Cancel moves any non-terminal trip to cancelled. Cancelling a cancelled trip
// returns the stored record unchanged.
func (s *Service) Cancel(ctx context.Context, tripID uuid.UUID, actor models.Actor, reason string) (*models.Trip, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: types.ActionTripCancel,
		TripID: tripID.String(),
		UserID: actor.ID.String(),
	})

	reason = strings.TrimSpace(reason)
	v := types.NewValidationError()
	v.Check(reason != "", "reason", "must be provided")
	v.Check(actor.Role.Valid(), "role", "must be rider, driver or operator")
	if err := v.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	var lastErr error
	for range cancelAttempts {
		trip, err := s.repo.Get(ctx, tripID)
		if err != nil {
			return nil, wrap.Error(ctx, err)
		}

		if trip.Status == types.StatusCancelled {
			return trip, nil
		}
		if trip.Status.IsTerminal() {
			err := &types.InvalidTransitionError{From: trip.Status, To: types.StatusCancelled}
			metrics.RecordTransition(string(trip.Status), string(types.StatusCancelled), err)
			return nil, wrap.Error(ctx, err)
		}
		if !trip.Participant(actor.ID, actor.Role) {
			return nil, wrap.Error(ctx, fmt.Errorf("%w: %w", &types.InvalidTransitionError{
				From: trip.Status, To: types.StatusCancelled, Reason: "actor is not a participant",
			}, types.ErrForbidden))
		}

		at := s.entryTime(trip)
		actorID := actor.ID
		next := trip.Clone()
		next.Status = types.StatusCancelled
		next.CancelledAt = &at
		next.CancellationReason = reason
		next.CancelledBy = &actorID

		updated, err := s.repo.Transition(ctx, models.Transition{
			TripID:          trip.ID,
			ExpectedStatus:  trip.Status,
			ExpectedVersion: trip.Version,
			Next:            next,
			Event:           types.EventTripCancelled,
			ActorID:         actor.ID,
		})
		metrics.RecordTransition(string(trip.Status), string(types.StatusCancelled), err)
		if errors.Is(err, types.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, wrap.Error(ctx, err)
		}

		s.cache.put(updated)
		s.l.Info(ctx, "trip cancelled", "from", trip.Status, "reason", reason, "role", actor.Role)

		s.effects.afterTransition(ctx, trip.Status, updated, actor, reason)
		return updated.Clone(), nil
	}

	return nil, wrap.Error(ctx, lastErr)
}

// AppendStop adds point at the end of the stop sequence while the trip is arrived or in progress.
func (s *Service) AppendStop(ctx context.Context, tripID uuid.UUID, actor models.Actor, point models.Point) (*models.Trip, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: types.ActionTripAppendStop,
		TripID: tripID.String(),
		UserID: actor.ID.String(),
	})

	if !point.Geo().Valid() {
		v := types.NewValidationError()
		v.Check(false, "stop", "lat/lng out of range")
		return nil, wrap.Error(ctx, v)
	}

	trip, err := s.repo.Get(ctx, tripID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if trip.Status != types.StatusArrived && trip.Status != types.StatusInProgress {
		return nil, wrap.Error(ctx, &types.InvalidTransitionError{
			From: trip.Status, To: trip.Status, Reason: "stops can be appended only while arrived or in progress",
		})
	}
	if actor.Role != types.RoleOperator && !trip.Participant(actor.ID, actor.Role) {
		return nil, wrap.Error(ctx, types.ErrForbidden)
	}

	next := trip.Clone()
	next.Stops = append(next.Stops, point)

	updated, err := s.repo.Transition(ctx, models.Transition{
		TripID:          trip.ID,
		ExpectedStatus:  trip.Status,
		ExpectedVersion: trip.Version,
		Next:            next,
		Event:           types.EventStopAppended,
		ActorID:         actor.ID,
	})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	s.cache.put(updated)
	s.l.Info(ctx, "stop appended", "stops", len(updated.Stops))

	s.effects.afterStopAppended(ctx, updated, point)
	return updated.Clone(), nil
}

// FindActiveForUser returns the newest non-terminal trip of the user in role, or nil.
func (s *Service) FindActiveForUser(ctx context.Context, userID uuid.UUID, role types.Role) (*models.Trip, error) {
	if role != types.RoleRider && role != types.RoleDriver {
		v := types.NewValidationError()
		v.Check(false, "role", "must be rider or driver")
		return nil, v
	}

	trip, err := s.repo.FindActiveForUser(ctx, userID, role)
	if err != nil {
		return nil, wrap.Error(wrap.WithUserID(ctx, userID.String()), fmt.Errorf("failed to find active trip: %w", err))
	}
	return trip, nil
}

// Wait blocks until in-flight side effects finish.
func (s *Service) Wait() {
	s.effects.wg.Wait()
}

// entryTime keeps state-entry timestamps non-decreasing even if the clock steps back.
func (s *Service) entryTime(trip *models.Trip) time.Time {
	at := s.now().UTC()
	for _, ts := range []*time.Time{trip.AssignedAt, trip.ArrivedAt, trip.StartedAt, trip.CompletedAt, trip.CancelledAt} {
		if ts != nil && ts.After(at) {
			at = *ts
		}
	}
	if trip.CreatedAt.After(at) {
		at = trip.CreatedAt
	}
	return at
}

// expectedSource is the status a caller must have observed to request target.
func expectedSource(trip *models.Trip, target types.TripStatus) types.TripStatus {
	if target == types.StatusAssigned {
		return models.InitialStatus(trip.Kind)
	}
	for _, from := range types.AllStatuses {
		if from != target && types.CanTransition(from, target) {
			return from
		}
	}
	return trip.Status
}
