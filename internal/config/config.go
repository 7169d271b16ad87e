package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type LookupFunc func(key string) (string, bool)

const (
	DefaultBrokerHost    = "localhost"
	DefaultBrokerPort    = 5672
	DefaultVirtualHost   = "/"
	DefaultUsername      = "guest"
	DefaultPassword      = "guest"
	DefaultPurgeSchedule = "@every 1h"
	DefaultAppHost       = "0.0.0.0"
	DefaultAppPort       = "8080"
	DefaultLogLevel      = "info"

	managementPort   = "15672"
	deadLetterSuffix = ".dlq"
)

// DefaultQueues is the purge list used when PURGE_QUEUES is not set.
var DefaultQueues = []string{"travel.bookings", "travel.admin"}

type Config struct {
	BrokerHost  string
	BrokerPort  int
	VirtualHost string
	Username    string
	Password    string

	// QueueNames is the ordered purge list.
	QueueNames []string
	// StatusQueues is the ordered list reported by the status command.
	StatusQueues []string

	ManagementURI string
	PostgresURI   string
	PurgeSchedule string

	AppHost  string
	AppPort  string
	LogLevel string
}

// Default returns the configuration the tool runs with when nothing is set.
func Default() Config {
	queues := append([]string(nil), DefaultQueues...)
	return Config{
		BrokerHost:    DefaultBrokerHost,
		BrokerPort:    DefaultBrokerPort,
		VirtualHost:   DefaultVirtualHost,
		Username:      DefaultUsername,
		Password:      DefaultPassword,
		QueueNames:    queues,
		StatusQueues:  withDeadLetters(queues),
		PurgeSchedule: DefaultPurgeSchedule,
		AppHost:       DefaultAppHost,
		AppPort:       DefaultAppPort,
		LogLevel:      DefaultLogLevel,
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

// BrokerAddr is the host:port of the AMQP listener.
func (c Config) BrokerAddr() string {
	return net.JoinHostPort(c.BrokerHost, strconv.Itoa(c.BrokerPort))
}

// AMQPURL returns the broker URL without credentials or vhost; both are
// supplied separately when dialing.
func (c Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s/", c.BrokerAddr())
}

// ManagementEndpoint returns the management API base URL, derived from the
// broker host when RABBITMQ_HTTP_URI is not set.
func (c Config) ManagementEndpoint() string {
	if c.ManagementURI != "" {
		return strings.TrimSuffix(c.ManagementURI, "/")
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(c.BrokerHost, managementPort))
}

func LoadFromEnv(lookup LookupFunc) (Config, error) {
	cfg := Default()

	cfg.BrokerHost = valueOr(lookup, "RABBITMQ_HOST", cfg.BrokerHost)
	cfg.VirtualHost = valueOr(lookup, "RABBITMQ_VHOST", cfg.VirtualHost)
	cfg.Username = valueOr(lookup, "RABBITMQ_USER", cfg.Username)
	if v, ok := lookup("RABBITMQ_PASSWORD"); ok && v != "" {
		cfg.Password = v
	}

	if v := valueOr(lookup, "RABBITMQ_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("RABBITMQ_PORT must be a port number, got %q", v)
		}
		cfg.BrokerPort = port
	}

	if v := valueOr(lookup, "PURGE_QUEUES", ""); v != "" {
		cfg.QueueNames = SplitList(v)
		cfg.StatusQueues = withDeadLetters(cfg.QueueNames)
	}
	if len(cfg.QueueNames) == 0 {
		return Config{}, errors.New("PURGE_QUEUES must name at least one queue")
	}
	if v := valueOr(lookup, "STATUS_QUEUES", ""); v != "" {
		cfg.StatusQueues = SplitList(v)
	}

	cfg.ManagementURI = valueOr(lookup, "RABBITMQ_HTTP_URI", "")
	cfg.PostgresURI = valueOr(lookup, "POSTGRES_URI", "")
	cfg.PurgeSchedule = valueOr(lookup, "PURGE_SCHEDULE", cfg.PurgeSchedule)
	cfg.AppHost = valueOr(lookup, "APP_HOST", cfg.AppHost)
	cfg.AppPort = valueOr(lookup, "APP_PORT", cfg.AppPort)
	cfg.LogLevel = valueOr(lookup, "LOG_LEVEL", cfg.LogLevel)

	if cfg.BrokerHost == "" {
		return Config{}, errors.New("RABBITMQ_HOST is required")
	}
	return cfg, nil
}

// SplitList parses a comma separated queue list. Blank entries are dropped and
// duplicates are removed keeping the first occurrence.
func SplitList(v string) []string {
	names := lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Uniq(lo.Compact(names))
}

func withDeadLetters(queues []string) []string {
	dlqs := lo.Map(queues, func(q string, _ int) string {
		return q + deadLetterSuffix
	})
	return lo.Uniq(append(append([]string{}, queues...), dlqs...))
}

func valueOr(lookup LookupFunc, key, def string) string {
	if v, ok := lookup(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return def
}
