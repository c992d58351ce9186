// Package middleware contains gin middleware specific to the API:
// admin token authentication and request instrumentation.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
	"github.com/asliddin-dev/edu-crm-api/pkg/response"
)

// ContextAdminKey is the gin context key holding the authenticated
// admin claims.
const ContextAdminKey = "admin_claims"

type tokenValidator interface {
	ValidateToken(token string) (*models.AdminClaims, error)
}

// JWTAuth enforces a valid Bearer token on protected routes.
func JWTAuth(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header"))
			c.Abort()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "authorization header must be a bearer token"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextAdminKey, claims)
		c.Next()
	}
}

// AdminFromContext returns the authenticated admin claims, if present.
func AdminFromContext(c *gin.Context) (*models.AdminClaims, bool) {
	value, exists := c.Get(ContextAdminKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.AdminClaims)
	return claims, ok
}
