package oauth

import (
	"log/slog"
	"net/http"

	"github.com/sahan/go-idp/internal/jwk"
	"github.com/sahan/go-idp/internal/web/response"
)

// DiscoveryDocument is the OpenID Provider metadata served from
// /.well-known/openid-configuration.
//
// see https://openid.net/specs/openid-connect-discovery-1_0.html
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
}

// NewDiscoveryDocument derives the provider metadata from the service
// configuration. Every advertised endpoint is rooted at the issuer URL.
func NewDiscoveryDocument(service *Service) DiscoveryDocument {
	issuer := service.Issuer()

	return DiscoveryDocument{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/authorize",
		TokenEndpoint:                    issuer + "/token",
		UserinfoEndpoint:                 issuer + "/userinfo",
		RevocationEndpoint:               issuer + "/revoke",
		JWKSURI:                          issuer + "/jwks",
		ResponseTypesSupported:           []string{ResponseTypeCode},
		GrantTypesSupported:              []string{GrantTypeAuthorizationCode},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported:                  service.SupportedScopes(),
		ClaimsSupported: []string{
			"sub", "name", "given_name", "family_name",
			"email", "email_verified", "phone_number", "phone_number_verified",
			"locale", "zoneinfo",
			"address", "birthdate", "country", "nationality",
		},
		TokenEndpointAuthMethods:      []string{"private_key_jwt", "client_secret_basic"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

func DiscoveryHandler(service *Service, logger *slog.Logger) http.Handler {
	document := NewDiscoveryDocument(service)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response.JSON(w, http.StatusOK, document)
	})
}

// KeysHandler serves the JWK set holding the provider's token
// verification key. Private key members never leave the process.
func KeysHandler(service *Service, logger *slog.Logger) http.Handler {
	keySet := jwk.Set{
		Keys: []jwk.Key{service.PublicKey()},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response.JSON(w, http.StatusOK, keySet)
	})
}
