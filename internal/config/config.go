package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

type Config struct {
	Server    Server
	Provider  Provider
	Store     Store
	Database  Database
	RateLimit RateLimit
	Payment   Payment
}

type Server struct {
	Port         int
	Environment  Environment
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// Provider holds the static provider identity: issuer, the scope universe
// it supports, the active signing key and the registered client set. All
// of it is loaded once at startup and passed by reference; there is no
// ambient global lookup.
type Provider struct {
	BaseURL         string
	SupportedScopes []string
	SigningKeyJWK   string // JSON private JWK; generated when empty outside production
	ClientsFile     string
	ClientsJSON     string
}

type Store struct {
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	KeyPrefix     string
}

type Database struct {
	Path string
}

type RateLimit struct {
	Enabled       bool
	TokenRequests int
	Window        time.Duration
}

// Payment configures the hosted checkout gateway. The integration is
// inactive until a base URL is set.
type Payment struct {
	BaseURL     string
	MerchantID  string
	APIUsername string
	APIPassword string
	APIVersion  string
	CallbackURL string
}

func (p Payment) Enabled() bool {
	return p.BaseURL != ""
}

// Load builds the configuration from the environment.
func Load() (Config, error) {
	var config Config
	var err error

	config.Server.Port, err = getEnvIntSafe("SERVER_PORT", 8080, false)
	if err != nil {
		return config, fmt.Errorf("server port config error: %w", err)
	}

	config.Server.Environment, err = getEnvEnvironmentSafe("SERVER_ENVIRONMENT", EnvDevelopment, false)
	if err != nil {
		return config, fmt.Errorf("server environment config error: %w", err)
	}

	config.Server.ReadTimeout, err = getEnvDurationSafe("SERVER_READ_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server read timeout config error: %w", err)
	}

	config.Server.WriteTimeout, err = getEnvDurationSafe("SERVER_WRITE_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server write timeout config error: %w", err)
	}

	config.Server.IdleTimeout, err = getEnvDurationSafe("SERVER_IDLE_TIMEOUT", 60*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server idle timeout config error: %w", err)
	}

	config.Provider.BaseURL, err = getEnvStringSafe("PROVIDER_BASE_URL", "", false)
	if err != nil {
		return config, fmt.Errorf("provider base URL config error: %w", err)
	}

	scopes, err := getEnvStringSafe("PROVIDER_SUPPORTED_SCOPES", "openid profile resident-service basic", false)
	if err != nil {
		return config, fmt.Errorf("provider scopes config error: %w", err)
	}
	config.Provider.SupportedScopes = strings.Fields(scopes)

	config.Provider.SigningKeyJWK, err = getEnvStringSafe("PROVIDER_SIGNING_KEY_JWK", "", false)
	if err != nil {
		return config, fmt.Errorf("provider signing key config error: %w", err)
	}

	config.Provider.ClientsFile, err = getEnvStringSafe("PROVIDER_CLIENTS_FILE", "", false)
	if err != nil {
		return config, fmt.Errorf("provider clients file config error: %w", err)
	}

	config.Provider.ClientsJSON, err = getEnvStringSafe("PROVIDER_CLIENTS_JSON", "", false)
	if err != nil {
		return config, fmt.Errorf("provider clients JSON config error: %w", err)
	}

	config.Store.RedisEnabled, err = getEnvBoolSafe("STORE_REDIS_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("store Redis enabled config error: %w", err)
	}

	config.Store.RedisAddr, err = getEnvStringSafe("STORE_REDIS_ADDR", "localhost:6379", false)
	if err != nil {
		return config, fmt.Errorf("store Redis address config error: %w", err)
	}

	config.Store.RedisPassword, err = getEnvStringSafe("STORE_REDIS_PASSWORD", "", false)
	if err != nil {
		return config, fmt.Errorf("store Redis password config error: %w", err)
	}

	config.Store.RedisDB, err = getEnvIntSafe("STORE_REDIS_DB", 0, false)
	if err != nil {
		return config, fmt.Errorf("store Redis DB config error: %w", err)
	}

	config.Store.RedisPoolSize, err = getEnvIntSafe("STORE_REDIS_POOL_SIZE", 10, false)
	if err != nil {
		return config, fmt.Errorf("store Redis pool size config error: %w", err)
	}

	config.Store.KeyPrefix, err = getEnvStringSafe("STORE_KEY_PREFIX", "idp:credential:", false)
	if err != nil {
		return config, fmt.Errorf("store key prefix config error: %w", err)
	}

	config.Database.Path, err = getEnvStringSafe("DB_PATH", "idp.db", false)
	if err != nil {
		return config, fmt.Errorf("database path config error: %w", err)
	}

	config.RateLimit.Enabled, err = getEnvBoolSafe("RATE_LIMIT_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("rate limit enabled config error: %w", err)
	}

	config.RateLimit.TokenRequests, err = getEnvIntSafe("RATE_LIMIT_TOKEN_REQUESTS", 10, false)
	if err != nil {
		return config, fmt.Errorf("rate limit token requests config error: %w", err)
	}

	config.RateLimit.Window, err = getEnvDurationSafe("RATE_LIMIT_WINDOW", time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("rate limit window config error: %w", err)
	}

	config.Payment.BaseURL, err = getEnvStringSafe("PAYDPI_BASE_URL", "", false)
	if err != nil {
		return config, fmt.Errorf("payment base URL config error: %w", err)
	}

	config.Payment.MerchantID, err = getEnvStringSafe("PAYDPI_MERCHANT_ID", "", false)
	if err != nil {
		return config, fmt.Errorf("payment merchant ID config error: %w", err)
	}

	config.Payment.APIUsername, err = getEnvStringSafe("PAYDPI_API_USERNAME", "", false)
	if err != nil {
		return config, fmt.Errorf("payment API username config error: %w", err)
	}

	config.Payment.APIPassword, err = getEnvStringSafe("PAYDPI_API_PASSWORD", "", false)
	if err != nil {
		return config, fmt.Errorf("payment API password config error: %w", err)
	}

	config.Payment.APIVersion, err = getEnvStringSafe("PAYDPI_API_VERSION", "100", false)
	if err != nil {
		return config, fmt.Errorf("payment API version config error: %w", err)
	}

	config.Payment.CallbackURL, err = getEnvStringSafe("PAYDPI_CALLBACK_URL", "", false)
	if err != nil {
		return config, fmt.Errorf("payment callback URL config error: %w", err)
	}

	return config, nil
}

// BaseURL returns the configured issuer or constructs one from the server
// settings for development setups.
func (c Config) BaseURL() string {
	if c.Provider.BaseURL != "" {
		return strings.TrimRight(c.Provider.BaseURL, "/")
	}

	scheme := "http"
	if c.Server.IsProduction() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, c.Server.Port)
}

func getEnvStringSafe(key, defaultValue string, required bool) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	return value, nil
}

func getEnvIntSafe(key string, defaultValue int, required bool) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvBoolSafe(key string, defaultValue bool, required bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return false, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a valid boolean: %w", key, err)
	}
	return value, nil
}

func getEnvDurationSafe(key string, defaultValue time.Duration, required bool) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a valid duration: %w", key, err)
	}
	return value, nil
}

func getEnvEnvironmentSafe(key string, defaultValue Environment, required bool) (Environment, error) {
	env, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	envValue := Environment(env)
	if !envValue.IsValid() {
		return "", fmt.Errorf("environment variable %s has invalid value: %s", key, env)
	}
	return envValue, nil
}
