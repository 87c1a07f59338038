package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

type PresenceStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]models.PresenceRecord
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{records: make(map[uuid.UUID]models.PresenceRecord)}
}

// UpsertPresence records the latest position, keeping the operational status.
func (s *PresenceStore) UpsertPresence(_ context.Context, driverID uuid.UUID, sample models.PositionSample, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[driverID]
	if !ok {
		rec = models.PresenceRecord{DriverID: driverID, OperationalStatus: types.DriverAvailable}
	}
	rec.LastPosition = sample
	rec.LastUpdatedAt = at
	s.records[driverID] = rec
	return nil
}

func (s *PresenceStore) SetOperationalStatus(_ context.Context, driverID uuid.UUID, status types.DriverStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[driverID]
	if !ok {
		rec = models.PresenceRecord{DriverID: driverID}
	}
	rec.OperationalStatus = status
	rec.LastUpdatedAt = at
	s.records[driverID] = rec
	return nil
}

func (s *PresenceStore) GetPresence(_ context.Context, driverID uuid.UUID) (*models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[driverID]
	if !ok {
		return nil, types.ErrPresenceNotFound
	}
	return &rec, nil
}

// QueryActivePresence returns non-offline records updated at or after staleBefore, freshest first.
func (s *PresenceStore) QueryActivePresence(_ context.Context, staleBefore time.Time) ([]models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.OperationalStatus == types.DriverOffline || !rec.Active(staleBefore) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt) })
	return out, nil
}
