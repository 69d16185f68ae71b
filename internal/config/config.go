// Package config loads service configuration from an optional .env file,
// an optional gateways.yaml and PAYGW_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourorg/payment-gateway/internal/gateway"
)

const envPrefix = "PAYGW"

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"` // gin mode: debug, release or test
}

// AleloConfig is the alelo section.
type AleloConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Test         bool   `mapstructure:"test"`
	BaseURL      string `mapstructure:"base_url"`
}

// StripeConfig is the stripe section.
type StripeConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SecretKey  string        `mapstructure:"secret_key"`
	BaseURL    string        `mapstructure:"base_url"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// OrbitalConfig is the orbital section.
type OrbitalConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	MerchantID string `mapstructure:"merchant_id"`
	TerminalID string `mapstructure:"terminal_id"`
	BIN        string `mapstructure:"bin"`
	Test       bool   `mapstructure:"test"`
	URL        string `mapstructure:"url"`
}

// MockConfig is the mock section.
type MockConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CircuitBreakerConfig tunes the router's breaker.
type CircuitBreakerConfig struct {
	FailureThreshold         int           `mapstructure:"failure_threshold"`
	ResetTimeout             time.Duration `mapstructure:"reset_timeout"`
	HalfOpenSuccessThreshold int           `mapstructure:"half_open_success_threshold"`
}

// TracingConfig enables the stdout span exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Pretty      bool   `mapstructure:"pretty"`
}

// Config is the whole service configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	LogLevel       string               `mapstructure:"log_level"`
	Route          []string             `mapstructure:"route"` // gateway order for /v1/route
	Alelo          AleloConfig          `mapstructure:"alelo"`
	Stripe         StripeConfig         `mapstructure:"stripe"`
	Orbital        OrbitalConfig        `mapstructure:"orbital"`
	Mock           MockConfig           `mapstructure:"mock"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("route", []string{})

	v.SetDefault("alelo.enabled", false)
	v.SetDefault("alelo.client_id", "")
	v.SetDefault("alelo.client_secret", "")
	v.SetDefault("alelo.test", true)
	v.SetDefault("alelo.base_url", "")

	v.SetDefault("stripe.enabled", false)
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.base_url", "")
	v.SetDefault("stripe.retry_delay", "0s")

	v.SetDefault("orbital.enabled", false)
	v.SetDefault("orbital.username", "")
	v.SetDefault("orbital.password", "")
	v.SetDefault("orbital.merchant_id", "")
	v.SetDefault("orbital.terminal_id", "001")
	v.SetDefault("orbital.bin", "000001")
	v.SetDefault("orbital.test", true)
	v.SetDefault("orbital.url", "")

	v.SetDefault("mock.enabled", false)

	v.SetDefault("circuit_breaker.failure_threshold", 3)
	v.SetDefault("circuit_breaker.reset_timeout", "30s")
	v.SetDefault("circuit_breaker.half_open_success_threshold", 1)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "payment-gateway")
	v.SetDefault("tracing.pretty", false)
}

// Load reads the configuration. envFile and configFile may be empty: an
// empty envFile loads ./.env when present, an empty configFile looks for
// gateways.yaml in the working directory and /etc/paygw. Explicitly named
// files must exist.
func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("gateways")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/paygw/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read gateways.yaml: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that defaults cannot express.
func (c *Config) Validate() error {
	enabled := c.EnabledGateways()
	if len(enabled) == 0 {
		return errors.New("config: no gateway is enabled")
	}
	on := make(map[gateway.Kind]bool, len(enabled))
	for _, k := range enabled {
		on[k] = true
	}
	for _, name := range c.Route {
		kind, err := gateway.ParseKind(name)
		if err != nil {
			return fmt.Errorf("config: route: %w", err)
		}
		if !on[kind] {
			return fmt.Errorf("config: route names %s but it is not enabled", kind)
		}
	}
	return nil
}

// EnabledGateways lists enabled gateways in a fixed order.
func (c *Config) EnabledGateways() []gateway.Kind {
	var kinds []gateway.Kind
	if c.Alelo.Enabled {
		kinds = append(kinds, gateway.KindAlelo)
	}
	if c.Stripe.Enabled {
		kinds = append(kinds, gateway.KindStripe)
	}
	if c.Orbital.Enabled {
		kinds = append(kinds, gateway.KindOrbital)
	}
	if c.Mock.Enabled {
		kinds = append(kinds, gateway.KindMock)
	}
	return kinds
}

// RouteOrder returns the configured route, or every enabled gateway when
// none is configured.
func (c *Config) RouteOrder() []gateway.Kind {
	if len(c.Route) == 0 {
		return c.EnabledGateways()
	}
	kinds := make([]gateway.Kind, 0, len(c.Route))
	for _, name := range c.Route {
		// Validate has already accepted every name.
		kind, _ := gateway.ParseKind(name)
		kinds = append(kinds, kind)
	}
	return kinds
}
