package models

import (
	"testing"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDetails_RoundTripsEachKind(t *testing.T) {
	at := time.Date(2030, 1, 2, 15, 4, 0, 0, time.UTC)
	cases := []KindDetails{
		ImmediateDetails{},
		ScheduledDetails{ScheduledFor: at},
		HourlyDetails{Hours: 3},
		PackageDetails{RecipientName: "Ana", RecipientPhone: "+5411"},
		PooledDetails{Seats: 2},
	}

	for _, d := range cases {
		t.Run(string(d.Kind()), func(t *testing.T) {
			raw, err := EncodeDetails(d)
			require.NoError(t, err)

			got, err := DecodeDetails(d.Kind(), raw)
			require.NoError(t, err)
			assert.Equal(t, d, got)
		})
	}

	_, err := DecodeDetails("bike", nil)
	assert.Error(t, err)
}

func TestValidateDetails(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		kind  types.TripKind
		d     KindDetails
		field string
	}{
		{"immediate without payload", types.KindImmediate, nil, ""},
		{"scheduled missing payload", types.KindScheduled, nil, "details"},
		{"scheduled in the past", types.KindScheduled, ScheduledDetails{ScheduledFor: now.Add(-time.Minute)}, "details.scheduled_for"},
		{"scheduled ok", types.KindScheduled, ScheduledDetails{ScheduledFor: now.Add(time.Hour)}, ""},
		{"hourly too long", types.KindHourly, HourlyDetails{Hours: 13}, "details.hours"},
		{"package without recipient", types.KindPackage, PackageDetails{RecipientPhone: "1"}, "details.recipient_name"},
		{"pooled seats", types.KindPooled, PooledDetails{Seats: 0}, "details.seats"},
		{"kind mismatch", types.KindPooled, HourlyDetails{Hours: 2}, "details"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := types.NewValidationError()
			ValidateDetails(v, tt.kind, tt.d, now)
			if tt.field == "" {
				assert.NoError(t, v.Err())
				return
			}
			assert.Contains(t, v.Fields, tt.field)
		})
	}
}

func TestTripClone_IsDeep(t *testing.T) {
	now := time.Now()
	trip := &Trip{Stops: []Point{{Lat: 1}}, AssignedAt: &now}

	c := trip.Clone()
	c.Stops[0].Lat = 2
	*c.AssignedAt = now.Add(time.Hour)

	assert.Equal(t, 1.0, trip.Stops[0].Lat)
	assert.Equal(t, now, *trip.AssignedAt)
}

func TestPositionSample_Validate(t *testing.T) {
	h := 90.0
	assert.NoError(t, PositionSample{Lat: -34.6, Lng: -58.4, HeadingDegrees: &h}.Validate())

	bad := 360.0
	assert.ErrorIs(t, PositionSample{Lat: -34.6, Lng: -58.4, HeadingDegrees: &bad}.Validate(), types.ErrValidation)
	assert.ErrorIs(t, PositionSample{Lat: 100}.Validate(), types.ErrValidation)
}
