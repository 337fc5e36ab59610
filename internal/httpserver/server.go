package httpserver

import (
	"errors"
	"net/http"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/handler"
	"docportal/internal/identity"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验 bearer token，把 principal 存进 gin.Context
func AuthMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			c.Abort()
			return
		}

		p, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			c.Abort()
			return
		}

		c.Set(handler.PrincipalKey, p)
		c.Next()
	}
}

// RequirePermission 中间件：要求调用方的全局角色具有指定权限
func RequirePermission(evaluator *access.Evaluator, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(handler.PrincipalKey)
		p, ok := v.(identity.Principal)
		if !exists || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			c.Abort()
			return
		}

		caller, err := evaluator.EvaluateRole(c.Request.Context(), p.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrForbidden) {
				c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrForbidden.Error()})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			c.Abort()
			return
		}

		if !caller.Has(permission) {
			c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrForbidden.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}
