package middleware

import (
	"net/http"
	"strings"

	"mission_rewards/internal/service"

	"github.com/gin-gonic/gin"
)

// JWT requires "Authorization: Bearer <token>" and puts the session wallet
// into the context under "wallet".
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		wallet, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("wallet", wallet)
		c.Next()
	}
}
