package middlewares

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hostbooks/qbsync_backend/utils"
)

// APITokenMiddleware guards the admin API with a single service token. The
// environment carries the bcrypt hash, never the token itself. With no hash
// configured, requests pass outside production and are rejected in it.
func APITokenMiddleware() gin.HandlerFunc {
	hash := strings.TrimSpace(os.Getenv("QBSYNC_API_TOKEN_HASH"))
	production := strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")

	return func(c *gin.Context) {
		if hash == "" {
			if production {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "api token not configured"})
				return
			}
			c.Next()
			return
		}

		token := c.GetHeader("token")
		if token == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}
		if token == "" || !utils.CheckTokenHash(token, hash) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request = c.Request.WithContext(utils.SetTokenInContext(c.Request.Context(), token))
		c.Next()
	}
}
