package jwk

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	apperrors "github.com/sahan/go-idp/internal/errors"
	"github.com/sahan/go-idp/pkg/random"
)

// Key is the portable descriptor of an RSA key pair, mirroring the JWK
// wire format (RFC 7517/7518). Public members are N and E; the remaining
// members are private and must never be published.
type Key struct {
	KTY string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	KID string `json:"kid,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

// Set is a published key set, the JWKS endpoint payload shape.
type Set struct {
	Keys []Key `json:"keys"`
}

// Parse decodes a JSON key descriptor and validates its public members.
func Parse(data []byte) (Key, error) {
	var key Key
	if err := json.Unmarshal(data, &key); err != nil {
		return key, apperrors.KeyFormatError("key descriptor is not valid JSON", err)
	}
	if err := key.Validate(); err != nil {
		return key, err
	}
	return key, nil
}

// Validate checks the fields every use of the key depends on.
func (k Key) Validate() error {
	if k.KTY != "RSA" {
		return apperrors.KeyFormatError(fmt.Sprintf("unsupported key type %q", k.KTY), nil)
	}
	if k.N == "" || k.E == "" {
		return apperrors.KeyFormatError("key descriptor is missing modulus or exponent", nil)
	}
	if _, err := decodeBigInt(k.N); err != nil {
		return apperrors.KeyFormatError("key modulus is not base64url", err)
	}
	if _, err := decodeBigInt(k.E); err != nil {
		return apperrors.KeyFormatError("key exponent is not base64url", err)
	}
	return nil
}

// HasPrivate reports whether the descriptor carries private members.
func (k Key) HasPrivate() bool {
	return k.D != ""
}

// SigningKey rebuilds the RSA private key from the descriptor. The private
// exponent is required; prime factors are used when present so the signer
// can run with CRT optimisations.
func (k Key) SigningKey() (*rsa.PrivateKey, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if k.D == "" {
		return nil, apperrors.KeyFormatError("key descriptor has no private exponent", nil)
	}

	publicKey, err := k.VerificationKey()
	if err != nil {
		return nil, err
	}

	d, err := decodeBigInt(k.D)
	if err != nil {
		return nil, apperrors.KeyFormatError("private exponent is not base64url", err)
	}

	privateKey := &rsa.PrivateKey{
		PublicKey: *publicKey,
		D:         d,
	}

	if k.P != "" && k.Q != "" {
		p, err := decodeBigInt(k.P)
		if err != nil {
			return nil, apperrors.KeyFormatError("prime factor p is not base64url", err)
		}
		q, err := decodeBigInt(k.Q)
		if err != nil {
			return nil, apperrors.KeyFormatError("prime factor q is not base64url", err)
		}
		privateKey.Primes = []*big.Int{p, q}

		if err := privateKey.Validate(); err != nil {
			return nil, apperrors.KeyFormatError("key members are inconsistent", err)
		}
		privateKey.Precompute()
	}

	return privateKey, nil
}

// VerificationKey rebuilds the RSA public key from the public members
// alone. It succeeds even when every private member is absent.
func (k Key) VerificationKey() (*rsa.PublicKey, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	n, err := decodeBigInt(k.N)
	if err != nil {
		return nil, apperrors.KeyFormatError("key modulus is not base64url", err)
	}
	e, err := decodeBigInt(k.E)
	if err != nil {
		return nil, apperrors.KeyFormatError("key exponent is not base64url", err)
	}
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, apperrors.KeyFormatError("key exponent out of range", nil)
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// Public strips every private member, retaining what the JWKS endpoint
// publishes: kid, algorithm tag and the public modulus/exponent. The
// algorithm tag is always RS256 regardless of the descriptor, since that
// is the only algorithm the provider signs with.
func (k Key) Public() Key {
	return Key{
		KTY: k.KTY,
		Use: "sig",
		Alg: "RS256",
		KID: k.KID,
		N:   k.N,
		E:   k.E,
	}
}

// Generate creates a fresh RSA key pair and renders it as a full
// descriptor. Used at startup when no key is configured, and by tests.
func Generate(bits int) (Key, error) {
	if bits != 2048 && bits != 3072 && bits != 4096 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return Key{}, fmt.Errorf("jwk: generate rsa key: %w", err)
	}

	kid, err := random.String(12)
	if err != nil {
		return Key{}, err
	}

	return FromPrivateKey(privateKey, kid), nil
}

// FromPrivateKey renders an in-memory RSA key pair as a descriptor.
func FromPrivateKey(privateKey *rsa.PrivateKey, kid string) Key {
	privateKey.Precompute()

	key := Key{
		KTY: "RSA",
		Use: "sig",
		Alg: "RS256",
		KID: kid,
		N:   encodeBigInt(privateKey.N),
		E:   encodeBigInt(big.NewInt(int64(privateKey.E))),
		D:   encodeBigInt(privateKey.D),
	}
	if len(privateKey.Primes) == 2 {
		key.P = encodeBigInt(privateKey.Primes[0])
		key.Q = encodeBigInt(privateKey.Primes[1])
		key.DP = encodeBigInt(privateKey.Precomputed.Dp)
		key.DQ = encodeBigInt(privateKey.Precomputed.Dq)
		key.QI = encodeBigInt(privateKey.Precomputed.Qinv)
	}
	return key
}

func decodeBigInt(encoded string) (*big.Int, error) {
	bytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(bytes), nil
}

func encodeBigInt(value *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(value.Bytes())
}
