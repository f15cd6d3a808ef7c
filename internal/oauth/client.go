package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"golang.org/x/crypto/bcrypt"

	"github.com/sahan/go-idp/internal/jwk"
)

// Client is a relying party registered with the provider.
//
// SecretHash holds a bcrypt hash of the client secret for clients that
// authenticate with client_secret_basic. AssertionKey holds the public RSA
// key used to verify private_key_jwt client assertions. A client may carry
// either, both, or neither (public client).
type Client struct {
	ID           string   `json:"client_id"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	SecretHash   string   `json:"secret_hash,omitempty"`
	AssertionKey *jwk.Key `json:"assertion_key,omitempty"`
}

// AllowsRedirectURI reports whether uri exactly matches one of the
// registered redirect URIs. No wildcard or prefix matching.
func (c Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsScope reports whether the client is registered for scope.
// A client with no registered scopes allows any provider-supported scope.
func (c Client) AllowsScope(scope string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	return slices.Contains(c.Scopes, scope)
}

// VerifySecret compares secret against the stored bcrypt hash.
func (c Client) VerifySecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HashSecret produces a bcrypt hash suitable for Client.SecretHash.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash client secret: %w", err)
	}
	return string(hash), nil
}

// Registry is the set of registered clients, loaded once at startup.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients []Client) (*Registry, error) {
	byID := make(map[string]Client, len(clients))
	for _, client := range clients {
		if client.ID == "" {
			return nil, fmt.Errorf("client registration missing client_id")
		}
		if _, exists := byID[client.ID]; exists {
			return nil, fmt.Errorf("duplicate client registration: %s", client.ID)
		}
		if client.AssertionKey != nil {
			if err := client.AssertionKey.Validate(); err != nil {
				return nil, fmt.Errorf("client %s assertion key: %w", client.ID, err)
			}
		}
		byID[client.ID] = client
	}
	return &Registry{clients: byID}, nil
}

// LoadRegistry reads client registrations from a JSON file, or from an
// inline JSON document when no file path is configured.
func LoadRegistry(filePath, inlineJSON string) (*Registry, error) {
	var raw []byte
	switch {
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read clients file: %w", err)
		}
		raw = data
	case inlineJSON != "":
		raw = []byte(inlineJSON)
	default:
		return NewRegistry(nil)
	}

	var clients []Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		return nil, fmt.Errorf("parse client registrations: %w", err)
	}
	return NewRegistry(clients)
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (Client, bool) {
	client, ok := r.clients[id]
	return client, ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}
