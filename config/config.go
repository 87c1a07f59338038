package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/exchange"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/presence"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/sensor"
	"github.com/horaciolidity/viaja-easy-sub002/internal/service/trip"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/configparser"
	"github.com/horaciolidity/viaja-easy-sub002/pkg/logger"
)

// Flags
var (
	modeFlag = flag.String("mode", "", "application mode: trip-service or presence-service")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
	ErrInvalidMode     = errors.New("invalid mode")
)

const (
	TransportRabbit = "rabbitmq"
	TransportRedis  = "redis"

	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Log      LogConfig
		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Redis    RedisConfig
		Kafka    KafkaConfig
		Services ServicesConfig
		Auth     Auth
		Trip     TripConfig
		Exchange ExchangeConfig
		Presence PresenceConfig
		Sensor   SensorConfig
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"tripcore_user"`
		Password string `env:"DATABASE_PASSWORD" default:"tripcore_pass"`
		Database string `env:"DATABASE_DATABASE" default:"tripcore_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	RedisConfig struct {
		Host     string `env:"REDIS_HOST" default:"localhost"`
		Port     string `env:"REDIS_PORT" default:"6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	KafkaConfig struct {
		Enabled       bool   `env:"KAFKA_ENABLED" default:"false"`
		Brokers       string `env:"KAFKA_BROKERS" default:"localhost:9092"` // comma separated
		LocationTopic string `env:"KAFKA_LOCATION_TOPIC" default:"driver-locations"`
	}

	ServicesConfig struct {
		TripService     string `env:"SERVICES_TRIP_SERVICE" default:"3000"`
		PresenceService string `env:"SERVICES_PRESENCE_SERVICE" default:"3001"`
	}

	Auth struct {
		JWTSecret string `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	TripConfig struct {
		EffectAttempts int           `env:"TRIP_EFFECT_ATTEMPTS" default:"3"`
		EffectBackoff  time.Duration `env:"TRIP_EFFECT_BACKOFF" default:"200ms"`
		EffectMaxDelay time.Duration `env:"TRIP_EFFECT_MAX_DELAY" default:"2s"`
		EffectTimeout  time.Duration `env:"TRIP_EFFECT_TIMEOUT" default:"10s"`
	}

	ExchangeConfig struct {
		Transport         string        `env:"EXCHANGE_TRANSPORT" default:"rabbitmq"`
		MinDistanceMeters float64       `env:"EXCHANGE_MIN_DISTANCE_METERS" default:"5"`
		TickInterval      time.Duration `env:"EXCHANGE_TICK_INTERVAL" default:"2s"`
	}

	PresenceConfig struct {
		Store           string        `env:"PRESENCE_STORE" default:"redis"`
		MinInterval     time.Duration `env:"PRESENCE_MIN_INTERVAL" default:"3s"`
		MinDisplacement float64       `env:"PRESENCE_MIN_DISPLACEMENT_METERS" default:"10"`
		Staleness       time.Duration `env:"PRESENCE_STALENESS" default:"60s"`
		WriteTimeout    time.Duration `env:"PRESENCE_WRITE_TIMEOUT" default:"5s"`
	}

	SensorConfig struct {
		Timeout      time.Duration `env:"SENSOR_TIMEOUT" default:"10s"`
		MaximumAge   time.Duration `env:"SENSOR_MAXIMUM_AGE" default:"0s"`
		HighAccuracy bool          `env:"SENSOR_HIGH_ACCURACY" default:"true"`
		RetryBase    time.Duration `env:"SENSOR_RETRY_BASE" default:"2s"`
		MaxRetries   int           `env:"SENSOR_MAX_RETRIES" default:"3"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c DatabaseConfig) PoolLimits() (maxConns, minConns int32, maxLifetime, maxIdle time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func (c RedisConfig) GetAddr() string     { return net.JoinHostPort(c.Host, c.Port) }
func (c RedisConfig) GetPassword() string { return c.Password }
func (c RedisConfig) GetDB() int          { return c.DB }

func (c KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c TripConfig) Service() trip.Config {
	return trip.Config{
		EffectAttempts: c.EffectAttempts,
		EffectBackoff:  c.EffectBackoff,
		EffectMaxDelay: c.EffectMaxDelay,
		EffectTimeout:  c.EffectTimeout,
	}
}

func (c ExchangeConfig) Service() exchange.Config {
	return exchange.Config{MinDistanceMeters: c.MinDistanceMeters, TickInterval: c.TickInterval}
}

func (c PresenceConfig) Service() presence.Config {
	return presence.Config{
		MinInterval:     c.MinInterval,
		MinDisplacement: c.MinDisplacement,
		Staleness:       c.Staleness,
		WriteTimeout:    c.WriteTimeout,
	}
}

func (c SensorConfig) Service() sensor.Config {
	return sensor.Config{
		Options: sensor.Options{
			HighAccuracy: c.HighAccuracy,
			Timeout:      c.Timeout,
			MaximumAge:   c.MaximumAge,
		},
		RetryBase:  c.RetryBase,
		MaxRetries: c.MaxRetries,
	}
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case types.TripService, types.PresenceService:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, c.Mode)
	}
	if !logger.ValidateLogLevel(c.Log.Level) {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Exchange.Transport != TransportRabbit && c.Exchange.Transport != TransportRedis {
		return fmt.Errorf("invalid exchange transport %q", c.Exchange.Transport)
	}
	if c.Presence.Store != StorePostgres && c.Presence.Store != StoreRedis {
		return fmt.Errorf("invalid presence store %q", c.Presence.Store)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is empty")
	}
	return nil
}
