package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables
// prefixed with GRABBER, e.g. GRABBER_SERVER_PORT.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Storage StorageConfig
	Grabber GrabberConfig
	Sources map[string]SourceConfig
}

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig defines the logger settings.
type LogConfig struct {
	Level string
}

// StorageConfig defines where tracked rates and their history are kept.
type StorageConfig struct {
	Path     string
	InMemory bool `mapstructure:"in_memory"`
}

// GrabberConfig defines settings shared by every source.
type GrabberConfig struct {
	UserAgent  string        `mapstructure:"user_agent"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// SourceConfig enables a source and narrows the pairs it may emit.
type SourceConfig struct {
	Enabled                  bool
	BaseCurrencyCodes        []string `mapstructure:"base_currency_codes"`
	DestinationCurrencyCodes []string `mapstructure:"destination_currency_codes"`
}

// SetDefaults registers the default of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.path", "./data/badger")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("grabber.user_agent", "exchange-rate-grabber/1.0")
	v.SetDefault("grabber.stale_after", 15*time.Minute)
}

// LoadConfig reads config.yaml from path, environment variables and defaults.
// A missing config file is not an error.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	SetDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("GRABBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, config.Validate()
}

// Validate checks values viper cannot check on its own
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Grabber.StaleAfter <= 0 {
		return fmt.Errorf("grabber.stale_after must be positive, got %s", c.Grabber.StaleAfter)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return errors.New("storage.path is required unless storage.in_memory is set")
	}
	return nil
}

// SourceEnabled reports whether a source may be used. Sources missing from
// the configuration are enabled.
func (c Config) SourceEnabled(source string) bool {
	sc, ok := c.Sources[source]
	return !ok || sc.Enabled
}
