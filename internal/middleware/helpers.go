// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetAccountID gets the authenticated account ID from context
func GetAccountID(c *gin.Context) (int64, bool) {
	accountID, exists := c.Get("account_id")
	if !exists {
		return 0, false
	}

	id, ok := accountID.(int64)
	return id, ok
}

// MustGetAccountID gets the account ID from context or panics
func MustGetAccountID(c *gin.Context) int64 {
	accountID, exists := GetAccountID(c)
	if !exists {
		panic("account_id not found in context")
	}
	return accountID
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// GetServiceName gets the calling service name set by ServiceAuth
func GetServiceName(c *gin.Context) string {
	name, exists := c.Get("service_name")
	if !exists {
		return ""
	}

	s, ok := name.(string)
	if !ok {
		return ""
	}
	return s
}

// HasRole checks if the authenticated user has a specific role
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}
