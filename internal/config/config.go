package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the incident service.
// Environment variables are parsed from the RIGHTSGUARD_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Persistent store backend: auto, sqlite, postgres, redis, memory
	StoreDriver string `envconfig:"STORE_DRIVER" default:"auto"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	RedisURL    string `envconfig:"REDIS_URL" default:""`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	StateKey     string `envconfig:"STATE_KEY" default:"rightsguard-state"`
	IncidentsKey string `envconfig:"INCIDENTS_KEY" default:"rightsguard-incidents"`

	// Capability and channel bounds
	LocationTimeout time.Duration `envconfig:"LOCATION_TIMEOUT" default:"5s"`
	LocationMaxAge  time.Duration `envconfig:"LOCATION_MAX_AGE" default:"60s"`
	DeviceTimeout   time.Duration `envconfig:"DEVICE_TIMEOUT" default:"10s"`
	ChannelTimeout  time.Duration `envconfig:"CHANNEL_TIMEOUT" default:"10s"`

	// 0 disables the cap.
	MaxCaptureBytes int64 `envconfig:"MAX_CAPTURE_BYTES" default:"0"`

	PersistMaxAttempts int `envconfig:"PERSIST_MAX_ATTEMPTS" default:"3"`

	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`

	// AI summary collaborator (OpenAI-compatible chat completions)
	SummaryURL    string `envconfig:"SUMMARY_URL" default:"https://api.openai.com/v1"`
	SummaryAPIKey string `envconfig:"SUMMARY_API_KEY" default:""`
	SummaryModel  string `envconfig:"SUMMARY_MODEL" default:"gpt-3.5-turbo"`

	// Content pinning collaborator
	PinningURL       string `envconfig:"PINNING_URL" default:"https://api.pinata.cloud"`
	PinningGateway   string `envconfig:"PINNING_GATEWAY" default:"https://gateway.pinata.cloud/ipfs"`
	PinningAPIKey    string `envconfig:"PINNING_API_KEY" default:""`
	PinningAPISecret string `envconfig:"PINNING_API_SECRET" default:""`

	// Bounds a seal inside stop so it fits the HTTP write and shutdown windows.
	PinningTimeout time.Duration `envconfig:"PINNING_TIMEOUT" default:"8s"`

	// Notification channels; an empty URL leaves the channel unavailable.
	ShareURL        string `envconfig:"SHARE_URL" default:""`
	SMSGatewayURL   string `envconfig:"SMS_GATEWAY_URL" default:""`
	SMSFrom         string `envconfig:"SMS_FROM" default:""`
	EmailGatewayURL string `envconfig:"EMAIL_GATEWAY_URL" default:""`
	EmailAPIKey     string `envconfig:"EMAIL_API_KEY" default:""`
	EmailFrom       string `envconfig:"EMAIL_FROM" default:"alerts@rightsguard.app"`
	AppOrigin       string `envconfig:"APP_ORIGIN" default:"http://localhost:8080"`
}

// ResolveDefaults validates BuildTarget and derives StoreDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultStore string

	switch c.BuildTarget {
	case "local":
		defaultStore = "sqlite"
	case "cloud-dev":
		defaultStore = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.StoreDriver == "" || c.StoreDriver == "auto" {
		c.StoreDriver = defaultStore
	}

	allowed := map[string]bool{"sqlite": true, "postgres": true, "redis": true, "memory": true}
	if !allowed[c.StoreDriver] {
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("STORE_DRIVER=postgres requires POSTGRES_DSN")
	}
	if c.StoreDriver == "redis" && c.RedisURL == "" {
		return fmt.Errorf("STORE_DRIVER=redis requires REDIS_URL")
	}
	if c.LocationTimeout <= 0 {
		return fmt.Errorf("LOCATION_TIMEOUT must be positive")
	}
	if c.DeviceTimeout <= 0 || c.DeviceTimeout > 10*time.Second {
		return fmt.Errorf("DEVICE_TIMEOUT must be within (0, 10s]")
	}
	if c.ChannelTimeout <= 0 || c.ChannelTimeout > 10*time.Second {
		return fmt.Errorf("CHANNEL_TIMEOUT must be within (0, 10s]")
	}
	if c.PinningTimeout <= 0 || c.PinningTimeout > 10*time.Second {
		return fmt.Errorf("PINNING_TIMEOUT must be within (0, 10s]")
	}
	if c.StateKey == "" || c.IncidentsKey == "" {
		return fmt.Errorf("STATE_KEY and INCIDENTS_KEY must be set")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: RIGHTSGUARD_HTTP_PORT, RIGHTSGUARD_STORE_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RIGHTSGUARD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("store_driver", cfg.StoreDriver).
		Int("port", cfg.HTTPPort).
		Dur("location_timeout", cfg.LocationTimeout).
		Dur("device_timeout", cfg.DeviceTimeout).
		Dur("channel_timeout", cfg.ChannelTimeout).
		Dur("pinning_timeout", cfg.PinningTimeout).
		Bool("summary_configured", cfg.SummaryAPIKey != "").
		Bool("pinning_configured", cfg.PinningConfigured()).
		Bool("sms_configured", cfg.SMSGatewayURL != "").
		Bool("email_configured", cfg.EmailGatewayURL != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		StoreDriver:               "memory",
		HTTPPort:                  8080,
		StateKey:                  "rightsguard-state",
		IncidentsKey:              "rightsguard-incidents",
		LocationTimeout:           5 * time.Second,
		LocationMaxAge:            60 * time.Second,
		DeviceTimeout:             10 * time.Second,
		ChannelTimeout:            10 * time.Second,
		PinningTimeout:            8 * time.Second,
		PersistMaxAttempts:        3,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		SummaryModel:              "gpt-3.5-turbo",
		PinningGateway:            "https://gateway.pinata.cloud/ipfs",
		EmailFrom:                 "alerts@rightsguard.app",
		AppOrigin:                 "http://localhost:8080",
	}
}

// PinningConfigured reports whether pinning credentials are present.
func (c *Config) PinningConfigured() bool {
	return c.PinningAPIKey != "" && c.PinningAPISecret != ""
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
