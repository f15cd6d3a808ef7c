package web

import (
	"log/slog"
	"net/http"

	"github.com/sahan/go-idp/internal/config"
	"github.com/sahan/go-idp/internal/health"
	"github.com/sahan/go-idp/internal/oauth"
	"github.com/sahan/go-idp/internal/web/middleware"
)

// NewHandler assembles the provider's HTTP surface. The discovery
// document is published under both the hyphenated well-known path and
// the underscore variant older integrations still call.
func NewHandler(
	cfg config.Config,
	logger *slog.Logger,
	service *oauth.Service,
	checker health.Checker,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", health.Handler(checker))

	mux.Handle("/.well-known/openid-configuration", oauth.DiscoveryHandler(service, logger))
	mux.Handle("/.well-known/openid_configuration", oauth.DiscoveryHandler(service, logger))
	mux.Handle("/jwks", oauth.KeysHandler(service, logger))

	mux.Handle("/authorize", oauth.AuthorizeHandler(service, logger))
	mux.Handle("/userinfo", oauth.UserinfoHandler(service, logger))
	mux.Handle("/revoke", oauth.RevokeHandler(service, logger))

	tokenHandler := oauth.TokenHandler(service, logger)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.TokenRequests, cfg.RateLimit.Window)
		tokenHandler = middleware.RateLimit(limiter, cfg.RateLimit.Window, logger, tokenHandler)
	}
	mux.Handle("/token", tokenHandler)

	var handler http.Handler = mux
	handler = middleware.LogRoutes(logger, handler)
	handler = middleware.HandlePanic(logger, handler)

	return handler
}
