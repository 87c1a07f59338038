package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/config"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/handler"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/middleware"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
	ws "github.com/horaciolidity/viaja-easy-sub002/pkg/wsHub"
)

const serverIPAddress = "%s:%s"

type API struct {
	mode   types.ServiceMode
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware
	hub    *ws.ConnectionHub

	addr string
	log  logger.Logger
}

type handlers struct {
	health   *handler.Health
	trip     *handler.Trip
	position *handler.Position
	presence *handler.Presence
}

// Services carries what the selected mode serves; the other fields stay nil.
type Services struct {
	Trips    handler.TripService
	Exchange handler.PositionExchange
	Presence handler.PresenceService
	Tokens   middleware.TokenValidator
}

func New(cfg config.Config, svc Services, log logger.Logger) (*API, error) {
	if svc.Tokens == nil {
		return nil, errors.New("token validator is required")
	}

	hub := ws.NewConnHub(log)
	routes := &handlers{health: handler.NewHealth(string(cfg.Mode), log)}

	var addr string
	switch cfg.Mode {
	case types.TripService:
		if svc.Trips == nil || svc.Exchange == nil {
			return nil, errors.New("trip service and exchange are required")
		}
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.TripService)
		routes.trip = handler.NewTrip(svc.Trips, log)
		routes.position = handler.NewPosition(svc.Trips, svc.Exchange, hub, string(cfg.Mode), log)
	case types.PresenceService:
		if svc.Presence == nil {
			return nil, errors.New("presence service is required")
		}
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.PresenceService)
		routes.presence = handler.NewPresence(svc.Presence, hub, string(cfg.Mode), log)
	default:
		return nil, fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	api := &API{
		mode:   cfg.Mode,
		mux:    http.NewServeMux(),
		routes: routes,
		m:      middleware.NewMiddleware(svc.Tokens, log),
		hub:    hub,
		addr:   addr,
		log:    log,
	}

	setupRoutes(api.mux, api.routes, api.m, api.mode)

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.withMiddleware(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return api, nil
}

// Handler returns the fully wrapped router.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)

	// hijacked websocket connections are not tracked by Shutdown
	a.hub.Close()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Auth(a.m.Metrics(string(a.mode))(a.mux)))))
}
