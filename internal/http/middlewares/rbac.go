package middlewares

import (
	"net/http"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole is the per-route form of the guard's role rules. It expects the
// guard to have run first.
func RequireRole(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}

		if !auth.Allow(role, roles...) {
			abortJSON(c, http.StatusForbidden, "forbidden", "Insufficient role")
			return
		}

		c.Next()
	}
}
