package config

import (
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	t.Setenv("RIGHTSGUARD_BUILD_TARGET", "local")
	t.Setenv("RIGHTSGUARD_STORE_DRIVER", "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("expected sqlite for local target, got %s", cfg.StoreDriver)
	}
	if cfg.LocationTimeout != 5*time.Second || cfg.LocationMaxAge != time.Minute {
		t.Fatalf("unexpected location defaults: %v %v", cfg.LocationTimeout, cfg.LocationMaxAge)
	}
	if cfg.PinningTimeout != 8*time.Second {
		t.Fatalf("unexpected pinning timeout %v", cfg.PinningTimeout)
	}
	if cfg.StateKey != "rightsguard-state" {
		t.Fatalf("unexpected state key %q", cfg.StateKey)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	t.Setenv("RIGHTSGUARD_STORE_DRIVER", "memory")
	t.Setenv("RIGHTSGUARD_LOCATION_TIMEOUT", "2s")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != "memory" || cfg.LocationTimeout != 2*time.Second {
		t.Fatalf("override failed: %+v", cfg)
	}
}

func TestResolveDefaults_CloudDevRequiresDSN(t *testing.T) {
	cfg := NewForTesting()
	cfg.BuildTarget = "cloud-dev"
	cfg.StoreDriver = "auto"
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatalf("expected error without POSTGRES_DSN")
	}
	cfg.PostgresDSN = "postgres://u:p@localhost/db"
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected postgres, got %s", cfg.StoreDriver)
	}
}

func TestResolveDefaults_Rejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"target":  func(c *Config) { c.BuildTarget = "mainframe" },
		"driver":  func(c *Config) { c.StoreDriver = "cassandra" },
		"redis":   func(c *Config) { c.StoreDriver = "redis" },
		"device":  func(c *Config) { c.DeviceTimeout = 30 * time.Second },
		"channel": func(c *Config) { c.ChannelTimeout = 0 },
		"pinning": func(c *Config) { c.PinningTimeout = time.Minute },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			cfg := NewForTesting()
			mutate(cfg)
			if err := cfg.ResolveDefaults(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
