package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/stripesync/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Logging LoggingConfig `validate:"required"`
	AWS     AWSConfig
	Stripe  StripeConfig
	Sentry  SentryConfig
	Sync    SyncConfig `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type AWSConfig struct {
	// Region overrides the SDK's default region resolution when set.
	Region string `mapstructure:"region"`
}

type StripeConfig struct {
	// RetryMax configures the HTTP transport handed to the Stripe backend.
	// Retries live in the transport, never in the reconcilers.
	RetryMax int           `mapstructure:"retry_max"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type SyncConfig struct {
	// ManagedBy is the identity written into the managedBy ownership tag of
	// every remote entity this tool creates. It is threaded explicitly into
	// each reconciler instance rather than read from a global.
	ManagedBy string `mapstructure:"managed_by" validate:"required"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("stripesync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/stripesync")

	v.SetEnvPrefix("STRIPESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("sync.managed_by", DefaultManagedBy)
	v.SetDefault("stripe.retry_max", 2)
	v.SetDefault("stripe.timeout", 30*time.Second)
	v.SetDefault("sentry.sample_rate", 1.0)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// DefaultManagedBy is the default ownership identity; override with
// sync.managed_by when several tools share a provider account.
const DefaultManagedBy = "stripesync"

// GetDefaultConfig returns a default configuration for tests and local runs.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{Level: types.LogLevelDebug},
		Stripe:  StripeConfig{RetryMax: 2, Timeout: 30 * time.Second},
		Sync:    SyncConfig{ManagedBy: DefaultManagedBy},
	}
}
