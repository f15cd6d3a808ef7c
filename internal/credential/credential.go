package credential

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the credential families the provider issues.
// Authorization codes and access tokens are structurally identical; they
// differ in TTL and consumption rules only.
type Kind string

const (
	KindAuthorizationCode Kind = "authorization_code"
	KindAccessToken       Kind = "access_token"
	KindSession           Kind = "session"
)

const (
	AuthorizationCodeTTL = 10 * time.Minute
	AccessTokenTTL       = time.Hour
	SessionTTL           = 8 * time.Hour
)

// Metadata keys understood by the protocol core. The store itself treats
// metadata as opaque.
const (
	MetadataRedirectURI   = "redirect_uri"
	MetadataCodeChallenge = "code_challenge"
	MetadataNonce         = "nonce"
)

// Credential is the unifying record behind authorization codes, access
// tokens and login sessions. The opaque Value is the lookup key and must
// be unique across live credentials. ExpiresAt is fixed at issuance and
// never extended; the only permitted mutation is flipping Revoked.
type Credential struct {
	SubjectID string            `json:"subject_id"`
	Value     string            `json:"value"`
	Kind      Kind              `json:"kind"`
	Scopes    []string          `json:"scopes,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Revoked   bool              `json:"revoked"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Valid reports whether the credential may still be used at the given
// instant. Validity is rechecked on every use, never cached.
func (c Credential) Valid(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// HasScope reports whether the credential carries the named scope.
func (c Credential) HasScope(scope string) bool {
	for _, granted := range c.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}

// NewAuthorizationCode issues a short-lived single-use code bound to
// subject, client and scope. The opaque value carries no information; the
// binding lives only in the store.
func NewAuthorizationCode(subjectID, clientID string, scopes []string, metadata map[string]string) Credential {
	now := time.Now().UTC()
	return Credential{
		SubjectID: subjectID,
		Value:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Kind:      KindAuthorizationCode,
		Scopes:    scopes,
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(AuthorizationCodeTTL),
		Metadata:  metadata,
	}
}

// NewAccessToken issues a bearer token carrying the scopes granted to the
// authorization code it was exchanged for.
func NewAccessToken(subjectID, clientID string, scopes []string) Credential {
	now := time.Now().UTC()
	return Credential{
		SubjectID: subjectID,
		Value:     uuid.NewString(),
		Kind:      KindAccessToken,
		Scopes:    scopes,
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(AccessTokenTTL),
	}
}

// NewSession issues a login-session credential for an authenticated
// subject. Sessions are produced by the authentication front end, which
// is outside the protocol core; the provider only validates them.
func NewSession(subjectID string) Credential {
	now := time.Now().UTC()
	return Credential{
		SubjectID: subjectID,
		Value:     uuid.NewString(),
		Kind:      KindSession,
		IssuedAt:  now,
		ExpiresAt: now.Add(SessionTTL),
	}
}
