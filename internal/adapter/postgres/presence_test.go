package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

var presenceColumnNames = []string{
	"driver_id", "lat", "lng", "heading", "accuracy_m", "speed_kmh", "captured_at",
	"last_updated_at", "operational_status", "geohash",
}

func TestPresenceRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPresenceRepo(mock)
	driverID := uuid.New()
	at := time.Now()
	sample := models.PositionSample{Lat: -34.6037, Lng: -58.3816, CapturedAt: at}

	mock.ExpectExec(`INSERT INTO driver_presence .+ ON CONFLICT \(driver_id\) DO UPDATE`).
		WithArgs(driverID, sample.Lat, sample.Lng, sample.HeadingDegrees, 0.0, 0.0, at, at, types.DriverAvailable, geohash.EncodeWithPrecision(sample.Lat, sample.Lng, 7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertPresence(context.Background(), driverID, sample, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepo_SetOperationalStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPresenceRepo(mock)
	driverID := uuid.New()
	at := time.Now()

	mock.ExpectExec(`INSERT INTO driver_presence \(driver_id, last_updated_at, operational_status\)`).
		WithArgs(driverID, at, types.DriverOnTrip).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SetOperationalStatus(context.Background(), driverID, types.DriverOnTrip, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepo_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPresenceRepo(mock)
	id := uuid.New()
	mock.ExpectQuery(`FROM driver_presence WHERE driver_id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(presenceColumnNames))

	_, err = repo.GetPresence(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresenceRepo_QueryActivePresence(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPresenceRepo(mock)
	staleBefore := time.Now().Add(-60 * time.Second)
	a, b := uuid.New(), uuid.New()
	updated := time.Now()
	hash := "69y7pkx"

	mock.ExpectQuery(`WHERE operational_status <> \$1 AND last_updated_at >= \$2`).
		WithArgs(types.DriverOffline, staleBefore).
		WillReturnRows(pgxmock.NewRows(presenceColumnNames).
			AddRow(a.String(), -34.60, -58.38, nil, 5.0, 30.0, nil, updated, "available", &hash).
			AddRow(b.String(), -34.61, -58.39, nil, 0.0, 0.0, nil, updated.Add(-time.Second), "onTrip", nil))

	recs, err := repo.QueryActivePresence(context.Background(), staleBefore)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, a, recs[0].DriverID)
	assert.Equal(t, types.DriverAvailable, recs[0].OperationalStatus)
	assert.Equal(t, hash, recs[0].Geohash)
	assert.Equal(t, 30.0, recs[0].LastPosition.SpeedKmh)
	assert.Equal(t, types.DriverOnTrip, recs[1].OperationalStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
