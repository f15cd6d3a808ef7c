package config_test

import (
	"testing"
	"time"

	"github.com/sahan/go-idp/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("unexpected default port %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != config.EnvDevelopment {
		t.Errorf("unexpected default environment %q", cfg.Server.Environment)
	}
	if len(cfg.Provider.SupportedScopes) != 4 {
		t.Errorf("unexpected default scopes %v", cfg.Provider.SupportedScopes)
	}
	if !cfg.Store.RedisEnabled {
		t.Error("redis should default to enabled")
	}
	if cfg.RateLimit.TokenRequests != 10 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Payment.Enabled() {
		t.Error("payment should be inactive without a base URL")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SERVER_ENVIRONMENT", "production")
	t.Setenv("PROVIDER_BASE_URL", "https://idp.example/")
	t.Setenv("PROVIDER_SUPPORTED_SCOPES", "openid basic")
	t.Setenv("STORE_REDIS_ENABLED", "false")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("PAYDPI_BASE_URL", "https://gateway.example")

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("unexpected port %d", cfg.Server.Port)
	}
	if !cfg.Server.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.BaseURL() != "https://idp.example" {
		t.Errorf("trailing slash not trimmed: %q", cfg.BaseURL())
	}
	if len(cfg.Provider.SupportedScopes) != 2 {
		t.Errorf("unexpected scopes %v", cfg.Provider.SupportedScopes)
	}
	if cfg.Store.RedisEnabled {
		t.Error("redis should be disabled")
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("unexpected window %v", cfg.RateLimit.Window)
	}
	if !cfg.Payment.Enabled() {
		t.Error("payment should be active with a base URL")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	if _, err := config.Load(); err == nil {
		t.Error("expected error for malformed port")
	}
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("SERVER_ENVIRONMENT", "staging")

	if _, err := config.Load(); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestBaseURLFallback(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.BaseURL() != "http://localhost:9000" {
		t.Errorf("unexpected fallback base URL %q", cfg.BaseURL())
	}
}
