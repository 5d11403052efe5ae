package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"uniMatch/internal/errcode"
)

// internalSecretHeader 承载运维面调用（重算触发、积分对账）的共享密钥。
const internalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware 保护 /internal 路由组。
// 密钥只走 Header，避免 query 泄露到浏览器历史与访问日志。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  errcode.SystemError,
				"error": "internal api secret is not configured",
			})
			c.Abort()
			return
		}
		token := strings.TrimSpace(c.GetHeader(internalSecretHeader))
		if token == "" || token != secret {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":  errcode.ValidationRejected,
				"error": "unauthorized",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
