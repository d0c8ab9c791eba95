// Package config loads the daemon settings from an optional YAML file and
// FLOWFORGE_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Database  Database  `mapstructure:"database"`
	Broker    Broker    `mapstructure:"broker"`
	Server    Server    `mapstructure:"server"`
	Worker    Worker    `mapstructure:"worker"`
	Scheduler Scheduler `mapstructure:"scheduler"`
}

type Database struct {
	// Path of the SQLite database file.
	Path string `mapstructure:"path"`
}

type Broker struct {
	// Kind selects the job broker: "sqlite" shares the database, "redis"
	// uses a stream.
	Kind      string `mapstructure:"kind"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Worker struct {
	Pollers         int           `mapstructure:"pollers"`
	PollingInterval time.Duration `mapstructure:"polling_interval"`
}

type Scheduler struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads the configuration, layering environment variables over the file
// at path (when given) over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("database.path", "flowforge.db")
	v.SetDefault("broker.kind", "sqlite")
	v.SetDefault("broker.redis_addr", "localhost:6379")
	v.SetDefault("broker.redis_db", 0)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.pollers", 2)
	v.SetDefault("worker.polling_interval", time.Second)
	v.SetDefault("scheduler.enabled", true)

	v.SetEnvPrefix("FLOWFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Broker.Kind {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}

	return &cfg, nil
}

// Addr returns the listen address of the HTTP server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
