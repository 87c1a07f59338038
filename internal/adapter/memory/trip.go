package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

// TripEvent is one audit entry recorded alongside a trip write.
type TripEvent struct {
	TripID  uuid.UUID
	Type    types.TripEvent
	ActorID uuid.UUID
	From    types.TripStatus
	To      types.TripStatus
	At      time.Time
}

// TripStore keeps trips in process memory. Every write is a check-and-set under one mutex.
type TripStore struct {
	mu     sync.RWMutex
	trips  map[uuid.UUID]*models.Trip
	events []TripEvent
}

func NewTripStore() *TripStore {
	return &TripStore{trips: make(map[uuid.UUID]*models.Trip)}
}

func (s *TripStore) Create(_ context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trips[trip.ID]; exists {
		return types.ErrConflict
	}
	stored := trip.Clone()
	stored.Version = 1
	s.trips[trip.ID] = stored
	trip.Version = 1

	s.events = append(s.events, TripEvent{
		TripID:  trip.ID,
		Type:    types.EventTripCreated,
		ActorID: trip.RiderID,
		To:      trip.Status,
		At:      trip.CreatedAt,
	})
	return nil
}

func (s *TripStore) Get(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, ok := s.trips[id]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	return trip.Clone(), nil
}

// Transition stores tr.Next only if the trip still has the expected status and version.
func (s *TripStore) Transition(_ context.Context, tr models.Transition) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.trips[tr.TripID]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	if cur.Status != tr.ExpectedStatus || cur.Version != tr.ExpectedVersion {
		return nil, &types.ConflictError{TripID: tr.TripID.String(), Expected: tr.ExpectedStatus}
	}

	next := tr.Next.Clone()
	next.Version = cur.Version + 1
	s.trips[tr.TripID] = next

	s.events = append(s.events, TripEvent{
		TripID:  tr.TripID,
		Type:    tr.Event,
		ActorID: tr.ActorID,
		From:    cur.Status,
		To:      next.Status,
		At:      time.Now(),
	})
	return next.Clone(), nil
}

// FindActiveForUser returns the most recently created non-terminal trip of the user in role.
func (s *TripStore) FindActiveForUser(_ context.Context, userID uuid.UUID, role types.Role) (*models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Trip
	for _, t := range s.trips {
		if t.Status.IsTerminal() || !t.Participant(userID, role) || role == types.RoleOperator {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			found = t
		}
	}
	return found.Clone(), nil
}

// Events returns a copy of the audit log of a trip.
func (s *TripStore) Events(tripID uuid.UUID) []TripEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TripEvent
	for _, e := range s.events {
		if e.TripID == tripID {
			out = append(out, e)
		}
	}
	return out
}
