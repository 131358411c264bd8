package rbac

import (
	"net/http"

	"eldercare-platform/internal/auth"
	"eldercare-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. Admins always pass;
// roles outside the known set never do.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		_, ok := allowedSet[role]
		if IsAdmin(role) || (ok && IsKnownRole(role)) {
			c.Next()
			return
		}
		logger.FromGin(c).Warn("role denied", "role", role, "route", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// RequireAdmin admits admins only.
func RequireAdmin() gin.HandlerFunc { return RequireAnyRole() }
