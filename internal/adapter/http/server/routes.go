package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/middleware"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
)

func setupRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware, mode types.ServiceMode) {
	// System Health
	mux.HandleFunc("GET /health", routes.health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	switch mode {
	case types.TripService:
		setupTripRoutes(mux, routes, m)
	case types.PresenceService:
		setupPresenceRoutes(mux, routes, m)
	}
}

func setupTripRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("POST /trips", m.RequireRoles(routes.trip.Create, types.RoleRider))                                              // Request a trip
	mux.Handle("GET /trips/active", m.RequireRoles(routes.trip.Active, types.RoleRider, types.RoleDriver))                      // Caller's current trip
	mux.Handle("GET /trips/{trip_id}", m.RequireRoles(routes.trip.Get))                                                         // Trip details
	mux.Handle("POST /trips/{trip_id}/transitions", m.RequireRoles(routes.trip.Transition))                                     // Move the trip forward
	mux.Handle("POST /trips/{trip_id}/cancel", m.RequireRoles(routes.trip.Cancel))                                              // Cancel the trip
	mux.Handle("POST /trips/{trip_id}/stops", m.RequireRoles(routes.trip.AppendStop))                                           // Add a stop mid-trip
	mux.Handle("GET /ws/trips/{trip_id}/position", m.RequireRoles(routes.position.HandleWS, types.RoleRider, types.RoleDriver)) // Realtime position relay
}

func setupPresenceRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	driverOrOperator := []types.Role{types.RoleDriver, types.RoleOperator}

	mux.Handle("POST /drivers/{driver_id}/status", m.RequireRoles(routes.presence.UpdateStatus, driverOrOperator...))         // Go online / offline
	mux.Handle("POST /drivers/{driver_id}/location", m.RequireRoles(routes.presence.Ingest, types.RoleDriver))                // One sensor reading
	mux.Handle("POST /drivers/{driver_id}/sensor-error", m.RequireRoles(routes.presence.ReportSensorError, types.RoleDriver)) // Sensor failure on the device
	mux.Handle("GET /drivers/{driver_id}/presence", m.RequireRoles(routes.presence.Get, driverOrOperator...))                 // Last known presence
	mux.Handle("GET /presence/active", m.RequireRoles(routes.presence.Active, types.RoleOperator))                            // Fresh drivers
	mux.Handle("GET /presence/nearby", m.RequireRoles(routes.presence.Nearby, types.RoleRider, types.RoleOperator))           // Available drivers around a point
	mux.Handle("GET /ws/drivers/{driver_id}/location", m.RequireRoles(routes.presence.HandleWS, types.RoleDriver))            // Sensor reading stream
}
