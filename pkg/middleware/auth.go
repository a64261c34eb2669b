package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey = "user_id"
	// UserRoleKey is the context key for the authenticated user role
	UserRoleKey = "user_role"
	// OrganizerIDKey is the context key for the organizer id claim, when present
	OrganizerIDKey = "organizer_id"
)

// AuthConfig holds identity middleware configuration
type AuthConfig struct {
	Secret string
	Issuer string
}

// IdentityClaims are the JWT claims issued by the platform's auth service
type IdentityClaims struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	OrganizerID string `json:"organizer_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates the Bearer token and stores identity in the request context.
// Identity issuance itself belongs to the auth service; this only verifies.
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims := &IdentityClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}
		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			abortUnauthorized(c, "invalid token issuer")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		if claims.OrganizerID != "" {
			c.Set(OrganizerIDKey, claims.OrganizerID)
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated role matches one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetUserRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   gin.H{"code": "FORBIDDEN", "message": "insufficient role"},
		})
	}
}

// GetUserID returns the authenticated user id from context
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetOrganizerID returns the organizer id claim from context, if present
func GetOrganizerID(c *gin.Context) string {
	if v, ok := c.Get(OrganizerIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetUserRole returns the authenticated user role from context
func GetUserRole(c *gin.Context) string {
	if v, ok := c.Get(UserRoleKey); ok {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"code": "UNAUTHORIZED", "message": msg},
	})
}
