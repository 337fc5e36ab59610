package handler

import (
	"net/http"

	"docportal/internal/identity"

	"github.com/gin-gonic/gin"
)

// PrincipalKey 认证中间件写入 gin.Context 的 key
const PrincipalKey = "principal"

// principal 读取本次请求的调用方；中间件保证受保护路由上一定存在
func principal(c *gin.Context) (identity.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return identity.Principal{}, false
	}
	p, ok := v.(identity.Principal)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return identity.Principal{}, false
	}
	return p, true
}
