package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsContextKey = "auth_claims"

// Middleware validates the Bearer token and stores the claims on the
// request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   ErrInvalidToken.Message,
				"code":    ErrInvalidToken.Code,
			})
			return
		}
		claims, err := s.VerifyAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   ErrInvalidToken.Message,
				"code":    ErrInvalidToken.Code,
			})
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequirePermission gates a route group behind a permission. Owners pass
// every check.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   ErrInvalidToken.Message,
				"code":    ErrInvalidToken.Code,
			})
			return
		}
		if !HasPermission(claims.Role, claims.Permissions, permission) {
			perr := &PermissionError{Required: permission}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":  false,
				"error":    perr.Error(),
				"code":     "permission_denied",
				"required": perr.Required,
			})
			return
		}
		c.Next()
	}
}

// ClaimsFrom extracts the verified claims placed by Middleware, nil when
// the request is unauthenticated.
func ClaimsFrom(c *gin.Context) *Claims {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
