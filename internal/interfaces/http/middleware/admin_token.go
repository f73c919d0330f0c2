package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payroute.backend/pkg/crypto"
)

const AdminTokenHeader = "X-Admin-Token"

var checkToken = crypto.CheckToken

// AdminTokenMiddleware guards the admin surface with a shared operator token
// compared against its bcrypt hash. An empty hash disables the surface.
func AdminTokenMiddleware(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    "ADMIN_DISABLED",
				"message": "admin API is not configured",
			})
			return
		}
		token := c.GetHeader(AdminTokenHeader)
		if token == "" || !checkToken(token, tokenHash) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "invalid admin token",
			})
			return
		}
		c.Next()
	}
}
