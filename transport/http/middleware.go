package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/decleanup/dcu/core"
)

// identityKey is the gin context key the authenticated identity is
// stored under.
const identityKey = "identity"

// RequireAuth extracts the bearer token, validates the session and
// stores the authenticated identity in the request context.
func RequireAuth(auth AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		identity, err := auth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
// Must run after RequireAuth.
func RequireRole(roles ...core.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient privileges"})
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func currentIdentity(c *gin.Context) core.Identity {
	identity, _ := c.Get(identityKey)
	id, _ := identity.(core.Identity)
	return id
}
