package oauth

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sahan/go-idp/internal/citizen"
	"github.com/sahan/go-idp/internal/credential"
	apperrors "github.com/sahan/go-idp/internal/errors"
	"github.com/sahan/go-idp/internal/jwk"
	"github.com/sahan/go-idp/pkg/jwt"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	ResponseTypeCode           = "code"
	ClientAssertionTypeJWT     = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// Maximum clock travel allowed on client assertion lifetimes
	maxAssertionLifetime = time.Hour
)

// CitizenStore is the subject lookup the service needs; satisfied by
// *citizen.Store.
type CitizenStore interface {
	GetByID(ctx context.Context, id string) (citizen.Citizen, error)
}

// Service implements the authorization code grant: code issuance, the
// token exchange with ID token signing, scope-gated userinfo, and
// revocation. All token state lives in the credential store; the service
// itself is stateless and safe for concurrent use.
type Service struct {
	clients         *Registry
	store           credential.Store
	citizens        CitizenStore
	signingKey      *rsa.PrivateKey
	publicKey       jwk.Key
	issuer          string
	supportedScopes []string
	logger          *slog.Logger
	now             func() time.Time
}

func NewService(
	clients *Registry,
	store credential.Store,
	citizens CitizenStore,
	signingKey jwk.Key,
	issuer string,
	supportedScopes []string,
	logger *slog.Logger,
) (*Service, error) {
	privateKey, err := signingKey.SigningKey()
	if err != nil {
		return nil, apperrors.KeyFormatError("provider signing key is not usable", err)
	}

	return &Service{
		clients:         clients,
		store:           store,
		citizens:        citizens,
		signingKey:      privateKey,
		publicKey:       signingKey.Public(),
		issuer:          issuer,
		supportedScopes: supportedScopes,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// PublicKey returns the verification half of the signing key, as served
// by the JWKS endpoint.
func (s *Service) PublicKey() jwk.Key {
	return s.publicKey
}

// Issuer returns the issuer identifier baked into every ID token.
func (s *Service) Issuer() string {
	return s.issuer
}

// SupportedScopes returns the scopes the provider will grant.
func (s *Service) SupportedScopes() []string {
	return s.supportedScopes
}

type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string

	// SubjectID is the authenticated citizen, resolved by the transport
	// layer from the login session. Empty means not authenticated.
	SubjectID string
}

type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
}

// Authorize validates an authorization request and issues a single-use
// authorization code bound to the client, redirect URI, granted scopes
// and PKCE challenge.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	var result AuthorizeResult

	if req.ClientID == "" {
		return result, apperrors.InvalidRequestError("client_id is required", nil)
	}
	client, ok := s.clients.Get(req.ClientID)
	if !ok {
		return result, apperrors.InvalidClientError("unknown client", nil)
	}

	if req.RedirectURI == "" {
		return result, apperrors.InvalidRequestError("redirect_uri is required", nil)
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		// Never redirect to an unregistered URI
		return result, apperrors.InvalidRequestError("redirect_uri is not registered for this client", nil)
	}

	if req.ResponseType == "" {
		return result, apperrors.InvalidRequestError("response_type is required", nil)
	}
	if req.ResponseType != ResponseTypeCode {
		return result, apperrors.InvalidRequestError("unsupported response_type", nil)
	}

	scopes, err := s.grantableScopes(client, req.Scope)
	if err != nil {
		return result, err
	}

	if req.CodeChallenge != "" || req.CodeChallengeMethod != "" {
		if err := ValidateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
			return result, apperrors.InvalidRequestError(err.Error(), err)
		}
	}

	if req.SubjectID == "" {
		return result, apperrors.LoginRequiredError("authentication is required", nil)
	}
	if _, err := s.citizens.GetByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, citizen.ErrCitizenNotFound) {
			return result, apperrors.LoginRequiredError("authentication is required", err)
		}
		return result, apperrors.ServerError("subject lookup failed", err)
	}

	metadata := map[string]string{
		credential.MetadataRedirectURI: req.RedirectURI,
	}
	if req.CodeChallenge != "" {
		metadata[credential.MetadataCodeChallenge] = req.CodeChallenge
	}
	if req.Nonce != "" {
		metadata[credential.MetadataNonce] = req.Nonce
	}

	code := credential.NewAuthorizationCode(req.SubjectID, client.ID, scopes, metadata)
	if err := s.store.Put(ctx, code); err != nil {
		return result, apperrors.ServerError("storing authorization code failed", err)
	}

	return AuthorizeResult{
		Code:        code.Value,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

func (s *Service) grantableScopes(client Client, rawScope string) ([]string, error) {
	requested := strings.Fields(rawScope)
	if len(requested) == 0 {
		return nil, apperrors.InvalidScopeError("scope is required", nil)
	}

	scopes := make([]string, 0, len(requested))
	for _, scope := range requested {
		if !slices.Contains(s.supportedScopes, scope) {
			return nil, apperrors.InvalidScopeError("unsupported scope: "+scope, nil)
		}
		if !client.AllowsScope(scope) {
			return nil, apperrors.InvalidScopeError("scope not allowed for this client: "+scope, nil)
		}
		if !slices.Contains(scopes, scope) {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}

type TokenRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string

	// Client authentication; at most one of the two is used.
	ClientSecret        string
	ClientAssertion     string
	ClientAssertionType string
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	IDToken     string `json:"id_token"`
	Scope       string `json:"scope"`
}

// Exchange redeems an authorization code for an access token and a signed
// ID token. The code is consumed atomically before any binding check, so
// a replayed or contested code loses exactly once and stays dead.
func (s *Service) Exchange(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	var response TokenResponse

	if req.GrantType == "" {
		return response, apperrors.InvalidRequestError("grant_type is required", nil)
	}
	if req.GrantType != GrantTypeAuthorizationCode {
		return response, apperrors.UnsupportedGrantTypeError("unsupported grant_type: "+req.GrantType, nil)
	}
	if req.Code == "" {
		return response, apperrors.InvalidRequestError("code is required", nil)
	}
	if req.ClientID == "" {
		return response, apperrors.InvalidRequestError("client_id is required", nil)
	}

	client, ok := s.clients.Get(req.ClientID)
	if !ok {
		return response, apperrors.InvalidClientError("unknown client", nil)
	}

	if err := s.authenticateClient(client, req); err != nil {
		return response, err
	}

	code, err := s.store.Consume(ctx, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound), errors.Is(err, credential.ErrAlreadyConsumed):
			return response, apperrors.InvalidGrantError("authorization code is invalid or expired", err)
		case errors.Is(err, credential.ErrUnavailable):
			return response, apperrors.StoreUnavailableError("credential store unavailable", err)
		default:
			return response, apperrors.ServerError("consuming authorization code failed", err)
		}
	}

	if code.Kind != credential.KindAuthorizationCode {
		return response, apperrors.InvalidGrantError("authorization code is invalid or expired", nil)
	}
	if code.ClientID != client.ID {
		return response, apperrors.InvalidGrantError("authorization code was issued to another client", nil)
	}
	if boundURI := code.Metadata[credential.MetadataRedirectURI]; boundURI != "" && req.RedirectURI != boundURI {
		return response, apperrors.InvalidGrantError("redirect_uri does not match the authorization request", nil)
	}
	if challenge := code.Metadata[credential.MetadataCodeChallenge]; challenge != "" {
		if err := VerifyCodeChallenge(req.CodeVerifier, challenge); err != nil {
			return response, apperrors.InvalidGrantError("code_verifier verification failed", err)
		}
	}

	subject, err := s.citizens.GetByID(ctx, code.SubjectID)
	if err != nil {
		if errors.Is(err, citizen.ErrCitizenNotFound) {
			return response, apperrors.InvalidGrantError("subject of the authorization code no longer exists", err)
		}
		return response, apperrors.ServerError("subject lookup failed", err)
	}

	accessToken := credential.NewAccessToken(code.SubjectID, client.ID, code.Scopes)
	if err := s.store.Put(ctx, accessToken); err != nil {
		if errors.Is(err, credential.ErrUnavailable) {
			return response, apperrors.StoreUnavailableError("credential store unavailable", err)
		}
		return response, apperrors.ServerError("storing access token failed", err)
	}

	idToken, err := s.signIDToken(subject, client.ID, code)
	if err != nil {
		// The code is already consumed; the client cannot retry with it.
		s.logger.Error("id token signing failed after code consumption",
			slog.String("client_id", client.ID),
			slog.String("subject_id", code.SubjectID),
			slog.String("error", err.Error()))
		return response, apperrors.ServerError("id token signing failed", err)
	}

	return TokenResponse{
		AccessToken: accessToken.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int64(credential.AccessTokenTTL.Seconds()),
		IDToken:     idToken,
		Scope:       strings.Join(code.Scopes, " "),
	}, nil
}

// authenticateClient verifies the caller's identity at the token endpoint.
// Clients with a registered assertion key MUST present a private_key_jwt
// assertion; clients with a secret hash use client_secret_basic. A client
// with neither is treated as public.
func (s *Service) authenticateClient(client Client, req TokenRequest) error {
	if client.AssertionKey != nil {
		if req.ClientAssertion == "" {
			return apperrors.InvalidClientError("client_assertion is required", nil)
		}
		if req.ClientAssertionType != ClientAssertionTypeJWT {
			return apperrors.InvalidRequestError("unsupported client_assertion_type", nil)
		}
		return s.verifyClientAssertion(client, req.ClientAssertion)
	}

	if client.SecretHash != "" {
		if !client.VerifySecret(req.ClientSecret) {
			return apperrors.InvalidClientError("client authentication failed", nil)
		}
		return nil
	}

	return nil
}

func (s *Service) verifyClientAssertion(client Client, assertion string) error {
	token, err := jwt.Decode(assertion)
	if err != nil {
		return apperrors.InvalidClientError("client_assertion is malformed", err)
	}

	verificationKey, err := client.AssertionKey.VerificationKey()
	if err != nil {
		return apperrors.ServerError("client assertion key is not usable", err)
	}
	if err := jwt.Verify(token, verificationKey); err != nil {
		return apperrors.InvalidClientError("client_assertion signature verification failed", err)
	}

	err = jwt.ValidateClaims(token, jwt.Expect{
		Issuer:   client.ID,
		Subject:  client.ID,
		Audience: s.issuer + "/token",
		Now:      s.now(),
	})
	if err != nil {
		return apperrors.InvalidClientError("client_assertion claims rejected", err)
	}

	if exp, ok := token.NumericClaim("exp"); ok {
		if time.Unix(exp, 0).Sub(s.now()) > maxAssertionLifetime {
			return apperrors.InvalidClientError("client_assertion lifetime is too long", nil)
		}
	}

	return nil
}

func (s *Service) signIDToken(subject citizen.Citizen, clientID string, code credential.Credential) (string, error) {
	now := s.now().UTC()

	token := jwt.New()
	token.Header["kid"] = s.publicKey.KID
	token.Payload["iss"] = s.issuer
	token.Payload["sub"] = subject.ID
	token.Payload["aud"] = clientID
	token.Payload["iat"] = now.Unix()
	token.Payload["exp"] = now.Add(credential.AccessTokenTTL).Unix()
	token.Payload["auth_time"] = authTime(subject).Unix()

	if nonce := code.Metadata[credential.MetadataNonce]; nonce != "" {
		token.Payload["nonce"] = nonce
	}

	// Profile claims ride along in the ID token under the same scope
	// gating userinfo applies.
	if anyScope(code.Scopes, []string{"openid", "profile"}) {
		for name, value := range profileClaims(subject) {
			token.Payload[name] = value
		}
	}

	return jwt.Sign(token, s.signingKey)
}

func authTime(subject citizen.Citizen) time.Time {
	if !subject.LastLoginAt.IsZero() {
		return subject.LastLoginAt
	}
	return subject.CreatedAt
}

// Userinfo resolves an access token to the claim set its scopes unlock.
func (s *Service) Userinfo(ctx context.Context, tokenValue string) (map[string]any, error) {
	if tokenValue == "" {
		return nil, apperrors.InvalidTokenError("access token is required", nil)
	}

	token, err := s.store.Get(ctx, tokenValue)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return nil, apperrors.InvalidTokenError("access token is invalid or expired", err)
		case errors.Is(err, credential.ErrUnavailable):
			return nil, apperrors.StoreUnavailableError("credential store unavailable", err)
		default:
			return nil, apperrors.ServerError("access token lookup failed", err)
		}
	}

	if token.Kind != credential.KindAccessToken || !token.Valid(s.now()) {
		return nil, apperrors.InvalidTokenError("access token is invalid or expired", nil)
	}

	subject, err := s.citizens.GetByID(ctx, token.SubjectID)
	if err != nil {
		if errors.Is(err, citizen.ErrCitizenNotFound) {
			return nil, apperrors.InvalidTokenError("access token subject no longer exists", err)
		}
		return nil, apperrors.ServerError("subject lookup failed", err)
	}

	return AssembleClaims(subject, token.Scopes), nil
}

// Revoke invalidates a token. Unknown tokens succeed silently per
// RFC 7009; the caller learns nothing about token existence.
func (s *Service) Revoke(ctx context.Context, tokenValue string) error {
	if tokenValue == "" {
		return apperrors.InvalidRequestError("token is required", nil)
	}

	err := s.store.Revoke(ctx, tokenValue)
	switch {
	case err == nil, errors.Is(err, credential.ErrNotFound):
		return nil
	case errors.Is(err, credential.ErrUnavailable):
		return apperrors.StoreUnavailableError("credential store unavailable", err)
	default:
		return apperrors.ServerError("token revocation failed", err)
	}
}

// Session resolves a login session credential to its subject. The
// authentication front end establishes sessions; the provider only
// honors live ones.
func (s *Service) Session(ctx context.Context, sessionValue string) (string, error) {
	if sessionValue == "" {
		return "", apperrors.LoginRequiredError("authentication is required", nil)
	}

	session, err := s.store.Get(ctx, sessionValue)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return "", apperrors.LoginRequiredError("authentication is required", err)
		case errors.Is(err, credential.ErrUnavailable):
			return "", apperrors.StoreUnavailableError("credential store unavailable", err)
		default:
			return "", apperrors.ServerError("session lookup failed", err)
		}
	}

	if session.Kind != credential.KindSession || !session.Valid(s.now()) {
		return "", apperrors.LoginRequiredError("authentication is required", nil)
	}

	return session.SubjectID, nil
}
