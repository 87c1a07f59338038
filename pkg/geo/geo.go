// Package geo holds pure great-circle helpers used by the trip and presence services.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Box is an axis-aligned lat/lng rectangle.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Valid reports whether p has finite coordinates within WGS84 range.
func (p Point) Valid() bool {
	if !finite(p.Lat) || !finite(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineMeters returns the great-circle distance between a and b in meters.
func HaversineMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithinRadius reports whether b lies within meters of a.
func WithinRadius(a, b Point, meters float64) bool {
	return HaversineMeters(a, b) <= meters
}

// BoundingBox frames all valid points. Returns nil when no valid point is given.
func BoundingBox(points []Point) *Box {
	var box *Box
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		if box == nil {
			box = &Box{MinLat: p.Lat, MinLng: p.Lng, MaxLat: p.Lat, MaxLng: p.Lng}
			continue
		}
		box.MinLat = math.Min(box.MinLat, p.Lat)
		box.MinLng = math.Min(box.MinLng, p.Lng)
		box.MaxLat = math.Max(box.MaxLat, p.Lat)
		box.MaxLng = math.Max(box.MaxLng, p.Lng)
	}
	return box
}

// BearingDegrees returns the initial compass bearing from -> to in [0, 360).
func BearingDegrees(from, to Point) float64 {
	lat1 := radians(from.Lat)
	lat2 := radians(to.Lat)
	dLng := radians(to.Lng - from.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// FormatDistance renders a distance given in kilometers.
func FormatDistance(km float64) string {
	if !finite(km) || km < 0 {
		return "-"
	}
	// thresholds compare rounded values so 0.9996 km is "1.0 km", not "1000 m"
	switch {
	case math.Round(km*1000) < 1000:
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	case math.Round(km*10) < 100:
		return fmt.Sprintf("%.1f km", km)
	default:
		return fmt.Sprintf("%d km", int(math.Round(km)))
	}
}

// FormatDuration renders a duration given in seconds.
func FormatDuration(seconds float64) string {
	if !finite(seconds) || seconds < 0 {
		return "-"
	}
	s := int(math.Round(seconds))
	if s < 60 {
		return fmt.Sprintf("%d s", s)
	}
	m := int(math.Round(float64(s) / 60))
	if m < 60 {
		return fmt.Sprintf("%d min", m)
	}
	return fmt.Sprintf("%d h %02d min", m/60, m%60)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
