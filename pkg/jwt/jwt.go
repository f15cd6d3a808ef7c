package jwt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKeyType        = errors.New("jwt: key is of invalid type")
	ErrTokenMalformed        = errors.New("jwt: token is malformed")
	ErrTokenSignatureInvalid = errors.New("jwt: token signature is invalid")
	ErrTokenExpired          = errors.New("jwt: token is expired")
	ErrTokenUsedBeforeIssued = errors.New("jwt: token used before issued")
	ErrTokenInvalidAudience  = errors.New("jwt: token has invalid audience")
	ErrTokenInvalidIssuer    = errors.New("jwt: token has invalid issuer")
	ErrTokenInvalidSubject   = errors.New("jwt: token has invalid subject")
	ErrUnsupportedAlgorithm  = errors.New("jwt: unsupported signing algorithm")
)

// Token is a compact JWS. For decoded tokens the original signing input is
// retained so verification runs over the exact bytes that were signed,
// not a re-marshalled copy.
type Token struct {
	Header    map[string]any
	Payload   map[string]any
	Signature []byte

	signingInput string
}

func New() Token {
	return Token{
		Header:  make(map[string]any),
		Payload: make(map[string]any),
	}
}

// Sign signs the token with RS256 and returns the compact serialization.
// The typ and alg header parameters are set here; the caller is expected
// to have set kid when verifiers need to select a key.
func Sign(token Token, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", ErrInvalidKeyType
	}

	token.Header["typ"] = "JWT"
	token.Header["alg"] = "RS256"

	signingInput, err := encodeSigningInput(token)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("jwt: signing failed: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// Decode splits and decodes a compact token without verifying it.
func Decode(tokenString string) (Token, error) {
	token := New()

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return token, ErrTokenMalformed
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return token, errors.Join(ErrTokenMalformed, err)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return token, errors.Join(ErrTokenMalformed, err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return token, errors.Join(ErrTokenMalformed, err)
	}

	if err := json.Unmarshal(header, &token.Header); err != nil {
		return token, errors.Join(ErrTokenMalformed, err)
	}
	if err := json.Unmarshal(payload, &token.Payload); err != nil {
		return token, errors.Join(ErrTokenMalformed, err)
	}

	token.Signature = signature
	token.signingInput = parts[0] + "." + parts[1]

	return token, nil
}

// Verify checks the token signature with an RSA public key.
func Verify(token Token, key *rsa.PublicKey) error {
	if key == nil {
		return ErrInvalidKeyType
	}

	if alg, _ := token.Header["alg"].(string); alg != "RS256" {
		return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, token.Header["alg"])
	}

	signingInput := token.signingInput
	if signingInput == "" {
		var err error
		signingInput, err = encodeSigningInput(token)
		if err != nil {
			return err
		}
	}

	digest := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], token.Signature); err != nil {
		return errors.Join(ErrTokenSignatureInvalid, err)
	}
	return nil
}

// StringClaim returns a string claim from the payload, "" when absent or
// of a different type.
func (t Token) StringClaim(name string) string {
	value, _ := t.Payload[name].(string)
	return value
}

// NumericClaim returns a numeric claim as int64. JSON numbers decode as
// float64, so both representations are accepted.
func (t Token) NumericClaim(name string) (int64, bool) {
	switch value := t.Payload[name].(type) {
	case float64:
		return int64(value), true
	case int64:
		return value, true
	}
	return 0, false
}

// KID returns the key identifier from the token header.
func (t Token) KID() string {
	kid, _ := t.Header["kid"].(string)
	return kid
}

func encodeSigningInput(token Token) (string, error) {
	header, err := json.Marshal(token.Header)
	if err != nil {
		return "", fmt.Errorf("jwt: marshal header: %w", err)
	}
	payload, err := json.Marshal(token.Payload)
	if err != nil {
		return "", fmt.Errorf("jwt: marshal payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload), nil
}
