package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"studio-booking-api/internal/auth"
	"studio-booking-api/internal/model"
)

const (
	UserIDKey = "uid"
	RoleKey   = "role"
)

type TokenParser interface {
	ParseToken(raw string) (*auth.Claims, error)
}

// Auth requires Authorization: Bearer <jwt> and stores the caller in the
// gin context.
func Auth(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, "no token")
			return
		}

		claims, err := p.ParseToken(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "bad token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole must run after Auth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "access denied")
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func Role(c *gin.Context) model.Role {
	v, _ := c.Get(RoleKey)
	r, _ := v.(model.Role)
	return r
}

func IsAdmin(c *gin.Context) bool {
	return Role(c) == model.RoleAdmin
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
