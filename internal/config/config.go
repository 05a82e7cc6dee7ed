// Package config provides configuration management for playmesh.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with PM_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs, ~/.playmesh, /etc/playmesh)
//  3. .env files
//  4. Environment variables (PM_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use PM_ prefix and underscores for nested keys:
//   - PM_SERVER_PORT=8090
//   - PM_STORAGE_PATH=/var/lib/playmesh/playmesh.db
//   - PM_PROVIDERS_TENSORDOCK_API_TOKEN=...
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for playmesh.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Storage contains persistence settings
	Storage StorageConfig `mapstructure:"storage"`

	// Providers contains per-provider adapter settings
	Providers ProvidersConfig `mapstructure:"providers"`

	// External contains endpoints of external services
	External ExternalConfig `mapstructure:"external"`

	// Orchestrator contains session orchestration settings
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`

	// Supervisor contains health supervisor settings
	Supervisor SupervisorConfig `mapstructure:"supervisor"`

	// Billing contains rate table and spend limit settings
	Billing BillingConfig `mapstructure:"billing"`

	// Security contains agent auth and rate limiting settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8090)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging
	Debug bool `mapstructure:"debug"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Path is the SQLite database file path
	Path string `mapstructure:"path"`
}

// ProvidersConfig groups per-provider adapter settings.
type ProvidersConfig struct {
	TensorDock TensorDockConfig `mapstructure:"tensordock"`
	CloudPad   CloudPadConfig   `mapstructure:"cloudpad"`
}

// TensorDockConfig configures the TensorDock REST adapter.
type TensorDockConfig struct {
	// Enabled determines whether the adapter is registered
	Enabled bool `mapstructure:"enabled"`

	// APIURL is the provider API base URL
	APIURL string `mapstructure:"api_url"`

	// APIToken is the bearer token for provider API calls
	APIToken string `mapstructure:"api_token"`

	// SSHUser is the login user for the post-create environment setup
	SSHUser string `mapstructure:"ssh_user"`

	// SSHPrivateKeyPath is the key used for the environment setup connection
	SSHPrivateKeyPath string `mapstructure:"ssh_private_key_path"`

	// SSHPublicKeyPath is the key installed on new instances at create time
	SSHPublicKeyPath string `mapstructure:"ssh_public_key_path"`
}

// CloudPadConfig configures the CloudPad CLI adapter.
type CloudPadConfig struct {
	// Enabled determines whether the adapter is registered
	Enabled bool `mapstructure:"enabled"`

	// BinaryPath is the path to the cloudpad CLI binary
	BinaryPath string `mapstructure:"binary_path"`

	// ConfigPath is the path to the CLI's own configuration file
	ConfigPath string `mapstructure:"config_path"`

	// ProjectID is the cloud project the CLI provisions into
	ProjectID string `mapstructure:"project_id"`
}

// ExternalConfig contains endpoints of external services.
type ExternalConfig struct {
	// GeocoderURL is the gazetteer search endpoint
	GeocoderURL string `mapstructure:"geocoder_url"`

	// LocationFinderURL is the remote region proximity endpoint
	LocationFinderURL string `mapstructure:"location_finder_url"`
}

// OrchestratorConfig contains session orchestration settings.
type OrchestratorConfig struct {
	// PoolSize caps concurrent provisioning tasks
	PoolSize int `mapstructure:"pool_size"`

	// DefaultAutoStopTimeout is stamped on new hosts for provider-side
	// auto-stop where supported
	DefaultAutoStopTimeout time.Duration `mapstructure:"default_auto_stop_timeout"`

	// WaitReady maps tier name to the provisioning readiness ceiling
	WaitReady map[string]time.Duration `mapstructure:"wait_ready"`
}

// SupervisorConfig contains health supervisor settings.
type SupervisorConfig struct {
	// LivenessInterval is the base cadence of the liveness sweep
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`

	// LivenessJitter is the fractional jitter applied to each cadence (0.1 = ±10%)
	LivenessJitter float64 `mapstructure:"liveness_jitter"`

	// IdleThreshold is how long a host may sit without clients before it is idled
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`

	// StoppedTTL is how long a STOPPED host is retained before destruction
	StoppedTTL time.Duration `mapstructure:"stopped_ttl"`

	// StoppedSweepInterval is the cadence of the long-stopped sweep
	StoppedSweepInterval time.Duration `mapstructure:"stopped_sweep_interval"`

	// MaxSessionHours maps tier name to the hard session-length stop
	MaxSessionHours map[string]float64 `mapstructure:"max_session_hours"`
}

// BillingConfig contains rate table and spend limit settings.
type BillingConfig struct {
	// RateTablePath is the path to the YAML rate table file
	RateTablePath string `mapstructure:"rate_table_path"`

	// DailyLimitUSD is the daily spend alert baseline
	DailyLimitUSD float64 `mapstructure:"daily_limit_usd"`

	// MonthlyLimitUSD is the monthly spend alert baseline
	MonthlyLimitUSD float64 `mapstructure:"monthly_limit_usd"`

	// MonthlySoftCapUSD triggers a warning event when month-to-date spend crosses it
	MonthlySoftCapUSD float64 `mapstructure:"monthly_soft_cap_usd"`

	// MonthlyHardCapUSD triggers a fleet drain when month-to-date spend crosses it
	MonthlyHardCapUSD float64 `mapstructure:"monthly_hard_cap_usd"`
}

// SecurityConfig contains agent auth and rate limiting settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AgentTokenSecret is the secret key for agent authentication tokens
	AgentTokenSecret string `mapstructure:"agent_token_secret"`

	// AgentTokenExpiration is how long minted agent tokens stay valid
	AgentTokenExpiration time.Duration `mapstructure:"agent_token_expiration"`

	// ClientCertPath is the PEM certificate handed to agents in the manifest
	ClientCertPath string `mapstructure:"client_cert_path"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PM_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.playmesh")
		v.AddConfigPath("/etc/playmesh")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, whether it was named explicitly
		// or searched for; any other read or parse error fails the load.
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("storage.path", "playmesh.db")

	v.SetDefault("providers.tensordock.enabled", true)
	v.SetDefault("providers.tensordock.api_url", "https://marketplace.tensordock.com/api/v0")
	v.SetDefault("providers.tensordock.ssh_user", "playmesh")
	v.SetDefault("providers.cloudpad.enabled", false)
	v.SetDefault("providers.cloudpad.binary_path", "cloudpad")

	v.SetDefault("external.geocoder_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("external.location_finder_url", "")

	v.SetDefault("orchestrator.pool_size", 32)
	v.SetDefault("orchestrator.default_auto_stop_timeout", "30m")
	v.SetDefault("orchestrator.wait_ready", map[string]string{
		"low":  "5m",
		"mid":  "10m",
		"high": "10m",
	})

	v.SetDefault("supervisor.liveness_interval", "15m")
	v.SetDefault("supervisor.liveness_jitter", 0.1)
	v.SetDefault("supervisor.idle_threshold", "20m")
	v.SetDefault("supervisor.stopped_ttl", "48h")
	v.SetDefault("supervisor.stopped_sweep_interval", "24h")
	v.SetDefault("supervisor.max_session_hours", map[string]float64{
		"low":  8,
		"mid":  8,
		"high": 6,
	})

	v.SetDefault("billing.rate_table_path", "configs/rates.yaml")
	v.SetDefault("billing.daily_limit_usd", 50)
	v.SetDefault("billing.monthly_limit_usd", 500)
	v.SetDefault("billing.monthly_soft_cap_usd", 400)
	v.SetDefault("billing.monthly_hard_cap_usd", 500)

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.agent_token_secret", "change-me-in-production")
	v.SetDefault("security.agent_token_expiration", "24h")
	v.SetDefault("security.client_cert_path", "")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if cfg.Orchestrator.PoolSize < 1 {
		return fmt.Errorf("orchestrator pool size must be positive")
	}

	if cfg.Supervisor.LivenessJitter < 0 || cfg.Supervisor.LivenessJitter >= 1 {
		return fmt.Errorf("supervisor liveness jitter must be in [0, 1): %v", cfg.Supervisor.LivenessJitter)
	}

	if cfg.Providers.TensorDock.Enabled && cfg.Providers.TensorDock.APIURL == "" {
		return fmt.Errorf("tensordock api url is required when the provider is enabled")
	}

	if cfg.Providers.CloudPad.Enabled && cfg.Providers.CloudPad.BinaryPath == "" {
		return fmt.Errorf("cloudpad binary path is required when the provider is enabled")
	}

	return nil
}

// Get returns the configuration loaded by the last call to Load.
func Get() *Config {
	return cfg
}

// WaitReadyFor returns the readiness ceiling for a tier, or zero when not
// configured. A non-positive ceiling makes WaitReady time out immediately.
func (c *OrchestratorConfig) WaitReadyFor(tier string) time.Duration {
	return c.WaitReady[tier]
}

// MaxSessionHoursFor returns the configured session-length hard stop for a
// tier, or zero when not configured.
func (c *SupervisorConfig) MaxSessionHoursFor(tier string) float64 {
	return c.MaxSessionHours[tier]
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
