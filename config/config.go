/*
Package config loads process configuration and builds the shared logger.

SOURCES (later wins):
  1. Defaults below
  2. Optional YAML file passed with -config
  3. .env in the working directory (loaded into the environment, never overriding it)
  4. Environment: APP_ prefix, dots become underscores
     (APP_STORE_DRIVER, APP_POSTGRES_DSN, ...)

PORT is honoured as a fallback for http.port so the service runs unchanged
on hosts that inject it.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Port            int
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Store struct {
		Driver string
	} `mapstructure:"store"`

	SQLite struct {
		Path string
	} `mapstructure:"sqlite"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Log struct {
		Level string
	} `mapstructure:"log"`

	Audit struct {
		Interval time.Duration
	} `mapstructure:"audit"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
	return c.App.Env == "dev" || c.App.Env == "development"
}

// Load reads configuration. path may be empty.
func Load(path string) (Config, error) {
	// A missing .env is normal outside local development.
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("http.port", "APP_HTTP_PORT", "PORT"); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("http.port", 5000)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("sqlite.path", "./data/materials.db")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "")
	v.SetDefault("audit.interval", time.Hour)
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite, postgres or memory)", c.Store.Driver)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}
