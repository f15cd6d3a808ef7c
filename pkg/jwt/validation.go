package jwt

import (
	"fmt"
	"time"
)

// Expect describes the claims a verified token must carry. Zero-valued
// fields are not checked.
type Expect struct {
	Issuer   string
	Subject  string
	Audience string
	Now      time.Time
}

// ValidateClaims checks registered claims against the expectation. The
// signature must already have been verified.
func ValidateClaims(token Token, expect Expect) error {
	now := expect.Now
	if now.IsZero() {
		now = time.Now()
	}

	exp, ok := token.NumericClaim("exp")
	if !ok {
		return fmt.Errorf("%w: exp claim missing", ErrTokenMalformed)
	}
	if now.Unix() >= exp {
		return ErrTokenExpired
	}

	if iat, ok := token.NumericClaim("iat"); ok && now.Unix() < iat {
		return ErrTokenUsedBeforeIssued
	}

	if expect.Issuer != "" && token.StringClaim("iss") != expect.Issuer {
		return ErrTokenInvalidIssuer
	}
	if expect.Subject != "" && token.StringClaim("sub") != expect.Subject {
		return ErrTokenInvalidSubject
	}
	if expect.Audience != "" && !hasAudience(token, expect.Audience) {
		return ErrTokenInvalidAudience
	}

	return nil
}

func hasAudience(token Token, audience string) bool {
	switch aud := token.Payload["aud"].(type) {
	case string:
		return aud == audience
	case []any:
		for _, entry := range aud {
			if value, ok := entry.(string); ok && value == audience {
				return true
			}
		}
	}
	return false
}
