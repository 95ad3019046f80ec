package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const devSecret = "jam-dev-cookie-secret-change-me"

var ErrDevSecret = errors.New("secret must be set in release mode")

type Config struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	Secret         string        `mapstructure:"secret" validate:"required,min=16"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	BackendURL     string        `mapstructure:"backend_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=100ms"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"min=1s"`
	Timezone       string        `mapstructure:"timezone"`
	RefreshPolicy  string        `mapstructure:"refresh_policy" validate:"oneof=strict last_writer_wins"`
	BackendRPS     float64       `mapstructure:"backend_rps" validate:"gte=0"`
	BackendBurst   int           `mapstructure:"backend_burst" validate:"min=1"`
	SaveRate       float64       `mapstructure:"save_rate" validate:"gt=0"`
	SaveBurst      int           `mapstructure:"save_burst" validate:"min=1"`
}

// Location resolves Timezone; empty or "Local" means the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads config/config.<CONFIG_ENV>.yaml (or --config), an optional .env,
// JAM_* environment variables and command-line flags, in rising precedence.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("jam", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a yaml config file")
	fs.Int("port", 8080, "listen port of the local view API")
	fs.String("backend-url", "", "base URL of the practice-room backend")
	fs.String("mode", "release", "gin mode: debug, release or test")
	fs.String("log-level", "info", "log level")
	fs.String("timezone", "", "IANA zone slots are keyed in (default: host zone)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if *configFile != "" {
		fileName = *configFile
	}
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", devSecret)
	v.SetDefault("log_level", "info")
	v.SetDefault("backend_url", "")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("timezone", "")
	v.SetDefault("refresh_policy", "strict")
	v.SetDefault("backend_rps", 10)
	v.SetDefault("backend_burst", 20)
	v.SetDefault("save_rate", 1)
	v.SetDefault("save_burst", 3)

	v.SetEnvPrefix("JAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":        "port",
		"backend_url": "backend-url",
		"mode":        "mode",
		"log_level":   "log-level",
		"timezone":    "timezone",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
		if !missing || *configFile != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid config: timezone: %w", err)
	}
	if cfg.Mode == "release" && cfg.Secret == devSecret {
		return nil, fmt.Errorf("invalid config: %w", ErrDevSecret)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("backend", cfg.BackendURL).Msg("config ready")
	return &cfg, nil
}
