package middleware

import (
	"net/http"
	"strings"

	"autoflow"
	"autoflow/pkg"

	"github.com/gin-gonic/gin"
)

const devUserID = "dev-user"

func AuthMiddleware(cfg autoflow.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Mode == "dev" {
			c.Set("userID", devUserID)
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			// browsers cannot set headers on websocket upgrades
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := pkg.ValidateToken(token, cfg.JWTConfig.Secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Set("userRole", claims.Role)

		c.Next()
	}
}

// UserID returns the id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
