package microservices

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/horaciolidity/viaja-easy-sub002/config"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/http/server"
	"github.com/horaciolidity/viaja-easy-sub002/internal/adapter/kafka"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/auth"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/presence"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
)

type PresenceService struct {
	infra
	presence   *presence.Service
	locations  *kafka.LocationStream
	httpServer *server.API
	cfg        config.Config
	log        logger.Logger
}

func NewPresence(ctx context.Context, cfg config.Config, log logger.Logger) (*PresenceService, error) {
	s := &PresenceService{cfg: cfg, log: log}
	if err := s.init(ctx); err != nil {
		s.infra.close(ctx, log)
		return nil, err
	}
	return s, nil
}

func (s *PresenceService) init(ctx context.Context) error {
	cfg, log := s.cfg, s.log

	store, err := s.presenceStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to setup presence store", err)
		return err
	}

	var stream presence.LocationStream
	if cfg.Kafka.Enabled {
		s.locations = kafka.NewLocationStream(cfg.Kafka.BrokerList(), cfg.Kafka.LocationTopic)
		stream = s.locations
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	s.presence = presence.NewService(store, stream, cfg.Presence.Service(), cfg.Sensor.Service(), log)

	s.httpServer, err = server.New(cfg, server.Services{
		Presence: s.presence,
		Tokens:   tokens,
	}, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return err
	}
	return nil
}

func (s *PresenceService) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "presence service closed")
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "presence service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (s *PresenceService) close(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
	if s.presence != nil {
		s.presence.Close(ctx)
		s.presence.Wait()
	}
	if s.locations != nil {
		if err := s.locations.Close(); err != nil {
			s.log.Warn(ctx, "Failed to close kafka writer", "error", err.Error())
		}
	}
	s.infra.close(ctx, s.log)
}
