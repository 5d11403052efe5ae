package api

import "github.com/gin-gonic/gin"

// userIDFromContext 取出 AuthMiddleware 注入的用户 ID。
func userIDFromContext(c *gin.Context) (uint, bool) {
	value, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}

// roleFromContext 取出 AuthMiddleware 注入的角色。
func roleFromContext(c *gin.Context) string {
	value, ok := c.Get("userRole")
	if !ok {
		return ""
	}
	role, _ := value.(string)
	return role
}
