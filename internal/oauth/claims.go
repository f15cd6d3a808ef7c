package oauth

import (
	"slices"

	"github.com/sahan/go-idp/internal/citizen"
)

// claimGroup couples a set of claims with the scopes that unlock it.
// A group is released when the access token carries any of its scopes.
type claimGroup struct {
	scopes  []string
	extract func(c citizen.Citizen) map[string]any
}

var claimGroups = []claimGroup{
	// Personal profile and contact claims
	{scopes: []string{"openid", "profile"}, extract: profileClaims},
	// Residency claims for government service integrations
	{scopes: []string{"resident-service"}, extract: residencyClaims},
}

func profileClaims(c citizen.Citizen) map[string]any {
	claims := make(map[string]any)
	putString(claims, "given_name", c.FirstName)
	putString(claims, "family_name", c.LastName)
	putString(claims, "name", c.FullName())
	putString(claims, "locale", c.Locale)
	putString(claims, "zoneinfo", c.Zoneinfo)
	if c.Email != "" {
		claims["email"] = c.Email
		claims["email_verified"] = c.Verified
	}
	if c.PhoneNumber != "" {
		claims["phone_number"] = c.PhoneNumber
		claims["phone_number_verified"] = c.Verified
	}
	return claims
}

func residencyClaims(c citizen.Citizen) map[string]any {
	claims := make(map[string]any)
	putString(claims, "address", c.Address)
	putString(claims, "birthdate", c.BirthDate)
	putString(claims, "country", c.Country)
	putString(claims, "nationality", c.Nationality)
	return claims
}

// AssembleClaims builds the userinfo claim set for a citizen, gated by the
// scopes granted to the access token. The subject identifier is always
// present; everything else requires a matching scope, and claims without a
// value are omitted entirely rather than sent as null or empty.
func AssembleClaims(c citizen.Citizen, scopes []string) map[string]any {
	claims := map[string]any{
		"sub": c.ID,
	}

	for _, group := range claimGroups {
		if !anyScope(scopes, group.scopes) {
			continue
		}
		for name, value := range group.extract(c) {
			claims[name] = value
		}
	}

	return claims
}

func anyScope(granted, wanted []string) bool {
	for _, scope := range wanted {
		if slices.Contains(granted, scope) {
			return true
		}
	}
	return false
}

func putString(claims map[string]any, name, value string) {
	if value != "" {
		claims[name] = value
	}
}
