package config

import (
	"fmt"
	"strings"
)

const HelpMessage = `
Trip lifecycle and realtime position core.

Usage:
  tripcore -mode=<mode> [-config-path=config.yaml]
  tripcore --help

Modes:
  trip-service       trip state machine API, trip position websocket relay
  presence-service   driver sensor ingest, presence tracking and queries

Every setting can be given in the yaml file or overridden by the environment
variable of the same name (see config.yaml).
`

func PrintHelp() {
	fmt.Print(HelpMessage)
}

// PrintConfig prints the effective configuration with secrets masked.
func PrintConfig(cfg *Config) {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(&b, "log: level=%s\n", cfg.Log.Level)
	fmt.Fprintf(&b, "database: %s:%s/%s user=%s password=%s\n",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.User, mask(cfg.Database.Password))
	fmt.Fprintf(&b, "rabbitmq: %s:%s user=%s password=%s\n",
		cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, cfg.RabbitMQ.User, mask(cfg.RabbitMQ.Password))
	fmt.Fprintf(&b, "redis: %s db=%d password=%s\n", cfg.Redis.GetAddr(), cfg.Redis.DB, mask(cfg.Redis.Password))
	fmt.Fprintf(&b, "kafka: enabled=%t brokers=%s topic=%s\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers, cfg.Kafka.LocationTopic)
	fmt.Fprintf(&b, "services: trip=%s presence=%s\n", cfg.Services.TripService, cfg.Services.PresenceService)
	fmt.Fprintf(&b, "auth: jwt_secret=%s\n", mask(cfg.Auth.JWTSecret))
	fmt.Fprintf(&b, "exchange: transport=%s min_distance=%.1fm tick=%s\n",
		cfg.Exchange.Transport, cfg.Exchange.MinDistanceMeters, cfg.Exchange.TickInterval)
	fmt.Fprintf(&b, "presence: store=%s min_interval=%s min_displacement=%.1fm staleness=%s\n",
		cfg.Presence.Store, cfg.Presence.MinInterval, cfg.Presence.MinDisplacement, cfg.Presence.Staleness)
	fmt.Fprintf(&b, "sensor: timeout=%s retry_base=%s max_retries=%d\n",
		cfg.Sensor.Timeout, cfg.Sensor.RetryBase, cfg.Sensor.MaxRetries)
	fmt.Print(b.String())
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
