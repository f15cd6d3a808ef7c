package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/sahan/go-idp/internal/citizen"
	"github.com/sahan/go-idp/internal/config"
	"github.com/sahan/go-idp/internal/credential"
	apperrors "github.com/sahan/go-idp/internal/errors"
	"github.com/sahan/go-idp/internal/health"
	"github.com/sahan/go-idp/internal/jwk"
	"github.com/sahan/go-idp/internal/oauth"
	"github.com/sahan/go-idp/internal/payment"
	"github.com/sahan/go-idp/internal/web"
)

// Container wires the provider's components together from configuration.
// Everything here is constructed once at startup; nothing reaches for
// globals afterwards.
type Container struct {
	Config      config.Config
	Logger      *slog.Logger
	Citizens    *citizen.Store
	Credentials credential.Store
	Clients     *oauth.Registry
	Service     *oauth.Service
	Payments    *payment.Client
	HTTPServer  *http.Server
}

func New(ctx context.Context) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, apperrors.ConfigError("loading configuration failed", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	citizens, err := citizen.Open(cfg.Database.Path, cfg.Server.Environment == config.EnvTesting)
	if err != nil {
		return nil, apperrors.ConfigError("opening citizen database failed", err)
	}
	if err := citizens.Migrate(ctx); err != nil {
		citizens.Close()
		return nil, apperrors.ConfigError("migrating citizen database failed", err)
	}

	credentials, err := newCredentialStore(ctx, cfg, logger)
	if err != nil {
		citizens.Close()
		return nil, err
	}

	clients, err := oauth.LoadRegistry(cfg.Provider.ClientsFile, cfg.Provider.ClientsJSON)
	if err != nil {
		citizens.Close()
		credentials.Close()
		return nil, apperrors.ConfigError("loading client registrations failed", err)
	}

	signingKey, err := loadSigningKey(cfg, logger)
	if err != nil {
		citizens.Close()
		credentials.Close()
		return nil, err
	}

	service, err := oauth.NewService(
		clients,
		credentials,
		citizens,
		signingKey,
		cfg.BaseURL(),
		cfg.Provider.SupportedScopes,
		logger,
	)
	if err != nil {
		citizens.Close()
		credentials.Close()
		return nil, err
	}

	var payments *payment.Client
	if cfg.Payment.Enabled() {
		payments = payment.NewClient(payment.Config{
			BaseURL:     cfg.Payment.BaseURL,
			MerchantID:  cfg.Payment.MerchantID,
			APIUsername: cfg.Payment.APIUsername,
			APIPassword: cfg.Payment.APIPassword,
			APIVersion:  cfg.Payment.APIVersion,
			CallbackURL: cfg.Payment.CallbackURL,
		}, logger)
	}

	checker := health.NewChecker(citizens, credentials, logger)
	handler := web.NewHandler(cfg, logger, service, checker)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Citizens:    citizens,
		Credentials: credentials,
		Clients:     clients,
		Service:     service,
		Payments:    payments,
		HTTPServer:  httpServer,
	}, nil
}

// Close releases the container's resources in reverse construction order.
func (c *Container) Close() error {
	var firstErr error

	if err := c.Credentials.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Citizens.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func newCredentialStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (credential.Store, error) {
	if !cfg.Store.RedisEnabled {
		logger.Warn("redis disabled, credentials held in process memory only")
		return credential.NewMemoryStore(), nil
	}

	store, err := credential.NewRedisStore(ctx, credential.RedisConfig{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
		PoolSize: cfg.Store.RedisPoolSize,
		Prefix:   cfg.Store.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("connecting to redis failed", err)
	}
	return store, nil
}

// loadSigningKey parses the configured private JWK, or generates an
// ephemeral key pair outside production so development setups work
// without provisioning.
func loadSigningKey(cfg config.Config, logger *slog.Logger) (jwk.Key, error) {
	if cfg.Provider.SigningKeyJWK != "" {
		key, err := jwk.Parse([]byte(cfg.Provider.SigningKeyJWK))
		if err != nil {
			return jwk.Key{}, apperrors.KeyFormatError("parsing provider signing key failed", err)
		}
		if !key.HasPrivate() {
			return jwk.Key{}, apperrors.KeyFormatError("provider signing key is missing private members", nil)
		}
		return key, nil
	}

	if cfg.Server.IsProduction() {
		return jwk.Key{}, apperrors.ConfigError("PROVIDER_SIGNING_KEY_JWK is required in production", nil)
	}

	logger.Warn("no signing key configured, generating an ephemeral key pair")
	return jwk.Generate(2048)
}
