package middleware

import (
	"net/http"
	"strings"

	"github.com/donorconnect/api/internal/services/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"
	userRoleKey  = "user_role"
)

// AuthMiddleware validates the bearer token and stores the claims in the
// request context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims := &auth.Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// GetUserID returns the authenticated user id or an empty string
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// GetUserEmail returns the authenticated user email or an empty string
func GetUserEmail(c *gin.Context) string {
	return c.GetString(userEmailKey)
}

// GetUserRole returns the authenticated user role or an empty string
func GetUserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}
