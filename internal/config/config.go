// Package config loads the server configuration from defaults, an optional
// YAML file, FRAGEN_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const envPrefix = "FRAGEN_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins  []string      `koanf:"allowed_origins" validate:"min=1"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `koanf:"dsn" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gt=0"`
	MaxIdleConns int    `koanf:"max_idle_conns" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

// SchedulerConfig holds the defaults for users without their own review settings.
type SchedulerConfig struct {
	StartEase float64 `koanf:"start_ease" validate:"gtefield=EaseMin,ltefield=EaseMax"`
	EaseMin   float64 `koanf:"ease_min" validate:"gte=1.3"`
	EaseMax   float64 `koanf:"ease_max" validate:"gtfield=EaseMin"`
}

type ScoringConfig struct {
	DefaultPassPercent float64 `koanf:"default_pass_percent" validate:"gte=0,lte=100"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration. The DSN and JWT secret have no
// usable default and must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			TokenTTL: 72 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			StartEase: 2.5,
			EaseMin:   1.3,
			EaseMax:   2.7,
		},
		Scoring: ScoringConfig{
			DefaultPassPercent: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Flags returns the command-line flag set. Flag names are the koanf keys so
// posflag can map them directly.
func Flags() *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet("fragenkreuzen", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.Int("server.port", def.Server.Port, "HTTP listen port")
	fs.StringSlice("server.allowed_origins", def.Server.AllowedOrigins, "CORS allowed origins")
	fs.String("database.driver", def.Database.Driver, "database driver (postgres or sqlite)")
	fs.String("database.dsn", "", "database connection string")
	fs.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", def.Log.Format, "log format (text or json)")
	return fs
}

// Load parses args and merges every configuration source into a validated Config.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	// FRAGEN_DATABASE_MAX_OPEN_CONNS -> database.max_open_conns
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, errors.Wrap(err, "load flags")
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// splitList accepts comma-separated entries, as env vars deliver lists as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
