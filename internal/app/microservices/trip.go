package microservices

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/horaciolidity/viaja-easy-sub002/config"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/server"
	pgrepo "github.com/horaciolidity/viaja-easy-sub002/internal/adapter/postgres"
	rabbitadapter "github.com/horaciolidity/viaja-easy-sub002/internal/adapter/rabbit"
	redisrepo "github.com/horaciolidity/viaja-easy-sub002/internal/adapter/redis"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/auth"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/exchange"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/trip"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/trm"
)

type TripService struct {
	infra
	trips      *trip.Service
	exchange   *exchange.Exchange
	httpServer *server.API
	cfg        config.Config
	log        logger.Logger
}

func NewTrip(ctx context.Context, cfg config.Config, log logger.Logger) (*TripService, error) {
	s := &TripService{cfg: cfg, log: log}
	if err := s.init(ctx); err != nil {
		s.infra.close(ctx, log)
		return nil, err
	}
	return s, nil
}

func (s *TripService) init(ctx context.Context) error {
	cfg, log := s.cfg, s.log

	if err := s.connectPostgres(ctx, cfg.Database); err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return err
	}
	if err := s.connectRabbit(ctx, cfg.RabbitMQ, log); err != nil {
		log.Error(ctx, "Failed to setup rabbitmq", err)
		return err
	}

	presenceStore, err := s.presenceStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to setup presence store", err)
		return err
	}

	var transport exchange.Transport
	switch cfg.Exchange.Transport {
	case config.TransportRedis:
		if err := s.connectRedis(ctx, cfg.Redis); err != nil {
			log.Error(ctx, "Failed to setup redis", err)
			return err
		}
		transport = redisrepo.NewPositionTransport(s.redis)
	default:
		t, err := rabbitadapter.NewPositionTransport(s.rabbit)
		if err != nil {
			log.Error(ctx, "Failed to declare position exchange", err)
			return err
		}
		transport = t
	}

	broker, err := rabbitadapter.NewTripBroker(s.rabbit, log)
	if err != nil {
		log.Error(ctx, "Failed to declare trip exchange", err)
		return err
	}
	notifier, err := rabbitadapter.NewNotifier(s.rabbit)
	if err != nil {
		log.Error(ctx, "Failed to declare notification exchange", err)
		return err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	s.exchange = exchange.New(transport, cfg.Exchange.Service(), log)
	s.trips = trip.New(trip.Deps{
		Repo:      pgrepo.NewTripRepo(s.postgresDB.Pool, trm.New(s.postgresDB.Pool)),
		Presence:  presenceStore,
		Channels:  s.exchange,
		Publisher: broker,
		Notifier:  notifier,
	}, cfg.Trip.Service(), log)

	s.httpServer, err = server.New(cfg, server.Services{
		Trips:    s.trips,
		Exchange: s.exchange,
		Tokens:   tokens,
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return err
	}
	return nil
}

func (s *TripService) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "trip service closed")
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "trip service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (s *TripService) close(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
	if s.exchange != nil {
		s.exchange.Close()
	}
	// let in-flight side effects reach the broker before it goes away
	if s.trips != nil {
		s.trips.Wait()
	}
	s.infra.close(ctx, s.log)
}
