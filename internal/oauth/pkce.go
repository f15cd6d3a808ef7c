package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrUnsupportedChallengeMethod = errors.New("unsupported code challenge method")
	ErrCodeVerificationFailed     = errors.New("code verification failed")
)

// ValidateCodeChallenge validates the PKCE parameters supplied on an
// authorization request. Only the S256 method is accepted.
func ValidateCodeChallenge(codeChallenge, codeChallengeMethod string) error {
	if codeChallenge == "" {
		return fmt.Errorf("%w: code_challenge is required", ErrInvalidCodeChallenge)
	}

	if codeChallengeMethod == "" {
		return fmt.Errorf("%w: code_challenge_method is required", ErrInvalidCodeChallenge)
	}

	if codeChallengeMethod != "S256" {
		return fmt.Errorf("%w: %s", ErrUnsupportedChallengeMethod, codeChallengeMethod)
	}

	// A base64url encoded SHA-256 digest is exactly 43 characters
	if len(codeChallenge) != 43 {
		return fmt.Errorf("%w: invalid code_challenge length for S256", ErrInvalidCodeChallenge)
	}

	return nil
}

// VerifyCodeChallenge verifies the code verifier presented at the token
// endpoint against the challenge stored with the authorization code.
func VerifyCodeChallenge(codeVerifier, codeChallenge string) error {
	if codeVerifier == "" {
		return fmt.Errorf("%w: code_verifier is required", ErrCodeVerificationFailed)
	}

	// Verifier length per RFC 7636 section 4.1
	if len(codeVerifier) < 43 || len(codeVerifier) > 128 {
		return fmt.Errorf("%w: invalid code_verifier length", ErrCodeVerificationFailed)
	}

	hash := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])

	if subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) != 1 {
		return ErrCodeVerificationFailed
	}

	return nil
}
