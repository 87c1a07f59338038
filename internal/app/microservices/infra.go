package microservices

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/horaciolidity/viaja-easy-sub002/config"
	pgrepo "github.com/horaciolidity/viaja-easy-sub002/internal/adapter/postgres"
	redisrepo "github.com/horaciolidity/viaja-easy-sub002/internal/adapter/redis"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/presence"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/postgres"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/rabbit"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/redis"
)

// infra holds the shared connections of a service process.
type infra struct {
	postgresDB *postgres.PostgreDB
	rabbit     *rabbit.RabbitMQ
	redis      *goredis.Client
}

func (i *infra) connectPostgres(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	i.postgresDB = db
	return nil
}

func (i *infra) connectRabbit(ctx context.Context, cfg config.RabbitMQConfig, log logger.Logger) error {
	r, err := rabbit.New(ctx, cfg.GetDSN(), log)
	if err != nil {
		return fmt.Errorf("setup rabbitmq: %w", err)
	}
	i.rabbit = r
	return nil
}

func (i *infra) connectRedis(ctx context.Context, cfg config.RedisConfig) error {
	if i.redis != nil {
		return nil
	}
	c, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup redis: %w", err)
	}
	i.redis = c
	return nil
}

// presenceStore opens the configured presence backend.
func (i *infra) presenceStore(ctx context.Context, cfg config.Config) (presence.Store, error) {
	if cfg.Presence.Store == config.StorePostgres {
		if i.postgresDB == nil {
			if err := i.connectPostgres(ctx, cfg.Database); err != nil {
				return nil, err
			}
		}
		return pgrepo.NewPresenceRepo(i.postgresDB.Pool), nil
	}

	if err := i.connectRedis(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	return redisrepo.NewPresenceStore(i.redis), nil
}

func (i *infra) close(ctx context.Context, log logger.Logger) {
	if i.rabbit != nil {
		if err := i.rabbit.Close(ctx); err != nil {
			log.Warn(ctx, "failed to close rabbitmq", "error", err.Error())
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn(ctx, "failed to close redis", "error", err.Error())
		}
	}
	i.postgresDB.Close()
}
