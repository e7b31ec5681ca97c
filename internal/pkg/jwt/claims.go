// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims carried by API tokens. Provider tokens are
// issued by the identity service; this service only verifies them. Resource
// creation services authenticate with service tokens (Service set, purpose
// "service").
type Claims struct {
	AccountID    int64    `json:"account_id"`
	Roles        []string `json:"roles,omitempty"`
	Service      string   `json:"service,omitempty"`
	TokenPurpose string   `json:"token_purpose"` // access, refresh, service
	jwt.RegisteredClaims
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin (including super admin)
func (c *Claims) IsAdmin() bool {
	return c.HasRole("admin") || c.HasRole("super_admin")
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
