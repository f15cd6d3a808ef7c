package oauth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sahan/go-idp/internal/credential"
	"github.com/sahan/go-idp/internal/oauth"
	"github.com/sahan/go-idp/internal/web/response"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, f fixture, subjectID string) string {
	t.Helper()

	session := credential.NewSession(subjectID)
	if err := f.store.Put(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	return session.Value
}

func TestAuthorizeHandlerRedirectsWithCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.AuthorizeHandler(f.service, discardLogger())

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "web-client")
	query.Set("redirect_uri", "https://rp.example/callback")
	query.Set("scope", "openid profile")
	query.Set("state", "af0ifjsldkj")

	r := httptest.NewRequest("GET", "/authorize?"+query.Encode(), nil)
	r.Header.Set("Authorization", "Bearer "+newSession(t, f, "199012345678"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}

	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if location.Host != "rp.example" || location.Path != "/callback" {
		t.Errorf("unexpected redirect target %q", location.String())
	}
	if location.Query().Get("code") == "" {
		t.Error("code missing from redirect")
	}
	if location.Query().Get("state") != "af0ifjsldkj" {
		t.Error("state not echoed in redirect")
	}
}

func TestAuthorizeHandlerWithoutSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.AuthorizeHandler(f.service, discardLogger())

	r := httptest.NewRequest("GET", "/authorize?response_type=code&client_id=web-client&redirect_uri=https%3A%2F%2Frp.example%2Fcallback&scope=openid", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var body response.OAuthError
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "login_required" {
		t.Errorf("expected login_required, got %q", body.Error)
	}
}

func TestAuthorizeHandlerRejectsPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.AuthorizeHandler(f.service, discardLogger())

	r := httptest.NewRequest("POST", "/authorize", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func authorizeCode(t *testing.T, f fixture, clientID string) string {
	t.Helper()

	req := validAuthorizeRequest()
	req.ClientID = clientID
	authorized, err := f.service.Authorize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return authorized.Code
}

func TestTokenHandlerFormExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.TokenHandler(f.service, discardLogger())

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", authorizeCode(t, f, "web-client"))
	form.Set("client_id", "web-client")
	form.Set("redirect_uri", "https://rp.example/callback")

	r := httptest.NewRequest("POST", "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cache := w.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cache)
	}

	var body oauth.TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.AccessToken == "" || body.IDToken == "" {
		t.Errorf("token response incomplete: %+v", body)
	}
	if body.TokenType != "Bearer" {
		t.Errorf("expected Bearer, got %q", body.TokenType)
	}
}

func TestTokenHandlerJSONExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.TokenHandler(f.service, discardLogger())

	payload := map[string]string{
		"grant_type":   "authorization_code",
		"code":         authorizeCode(t, f, "web-client"),
		"client_id":    "web-client",
		"redirect_uri": "https://rp.example/callback",
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("POST", "/token", strings.NewReader(string(encoded)))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTokenHandlerBasicAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.TokenHandler(f.service, discardLogger())

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", authorizeCode(t, f, "secret-client"))
	form.Set("redirect_uri", "https://rp.example/callback")

	r := httptest.NewRequest("POST", "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth("secret-client", "correct horse")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTokenHandlerErrorEnvelope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.TokenHandler(f.service, discardLogger())

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "bogus")
	form.Set("client_id", "web-client")

	r := httptest.NewRequest("POST", "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var body response.OAuthError
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "invalid_grant" {
		t.Errorf("expected invalid_grant, got %q", body.Error)
	}
	if body.ErrorDescription == "" {
		t.Error("expected an error_description")
	}
}

func TestUserinfoHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	handler := oauth.UserinfoHandler(f.service, discardLogger())

	token := credential.NewAccessToken("199012345678", "web-client", []string{"openid"})
	if err := f.store.Put(ctx, token); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/userinfo", nil)
	r.Header.Set("Authorization", "Bearer "+token.Value)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var claims map[string]any
	if err := json.NewDecoder(w.Body).Decode(&claims); err != nil {
		t.Fatal(err)
	}
	if claims["sub"] != "199012345678" {
		t.Errorf("unexpected sub %v", claims["sub"])
	}

	t.Run("bad token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/userinfo", nil)
		r.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Error("expected a WWW-Authenticate challenge")
		}
	})
}

func TestRevokeHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	handler := oauth.RevokeHandler(f.service, discardLogger())

	token := credential.NewAccessToken("199012345678", "web-client", []string{"openid"})
	if err := f.store.Put(ctx, token); err != nil {
		t.Fatal(err)
	}

	form := url.Values{}
	form.Set("token", token.Value)

	r := httptest.NewRequest("POST", "/revoke", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := f.store.Get(ctx, token.Value)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Revoked {
		t.Error("token not revoked")
	}
}

func TestDiscoveryHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.DiscoveryHandler(f.service, discardLogger())

	r := httptest.NewRequest("GET", "/.well-known/openid-configuration", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var document oauth.DiscoveryDocument
	if err := json.NewDecoder(w.Body).Decode(&document); err != nil {
		t.Fatal(err)
	}

	if document.Issuer != testIssuer {
		t.Errorf("unexpected issuer %q", document.Issuer)
	}
	if document.TokenEndpoint != testIssuer+"/token" {
		t.Errorf("unexpected token endpoint %q", document.TokenEndpoint)
	}
	if document.JWKSURI != testIssuer+"/jwks" {
		t.Errorf("unexpected jwks uri %q", document.JWKSURI)
	}
	if len(document.ResponseTypesSupported) != 1 || document.ResponseTypesSupported[0] != "code" {
		t.Errorf("unexpected response types %v", document.ResponseTypesSupported)
	}
	if len(document.IDTokenSigningAlgValuesSupported) != 1 || document.IDTokenSigningAlgValuesSupported[0] != "RS256" {
		t.Errorf("unexpected id token algs %v", document.IDTokenSigningAlgValuesSupported)
	}
	if len(document.CodeChallengeMethodsSupported) != 1 || document.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("unexpected pkce methods %v", document.CodeChallengeMethodsSupported)
	}
}

func TestKeysHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := oauth.KeysHandler(f.service, discardLogger())

	r := httptest.NewRequest("GET", "/jwks", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	raw := w.Body.String()
	for _, member := range []string{`"d"`, `"p"`, `"q"`} {
		if strings.Contains(raw, member+":") {
			t.Errorf("jwks leaks private member %s", member)
		}
	}

	var keySet struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal([]byte(raw), &keySet); err != nil {
		t.Fatal(err)
	}
	if len(keySet.Keys) != 1 {
		t.Fatalf("expected exactly one key, got %d", len(keySet.Keys))
	}

	key := keySet.Keys[0]
	if key["kty"] != "RSA" || key["use"] != "sig" {
		t.Errorf("unexpected key attributes %v", key)
	}
	if key["kid"] != f.signingKey.KID {
		t.Errorf("jwks kid %v does not match signing key %q", key["kid"], f.signingKey.KID)
	}
	if _, ok := key["d"]; ok {
		t.Error("jwks leaks the private exponent")
	}
}
