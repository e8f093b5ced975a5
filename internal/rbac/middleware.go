package rbac

import (
	"net/http"

	"gamecredit-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireClient enforces that the caller acts as a wallet owner: client_id must be in context.
func RequireClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid, err := auth.ClientID(c.Request.Context())
		if err != nil || cid == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "client_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
