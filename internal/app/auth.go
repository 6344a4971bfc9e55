package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// principalKey holds the authenticated caller in the gin context.
const principalKey = "principal"

type AuthConfig struct {
	StaticTokens []string
	JWTSecret    string
}

// Enabled is false when neither static tokens nor a JWT secret are configured.
func (c AuthConfig) Enabled() bool {
	if strings.TrimSpace(c.JWTSecret) != "" {
		return true
	}
	for _, t := range c.StaticTokens {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

// AuthMiddleware accepts bearer tokens that are either one of the static
// tokens or an HS256 JWT signed with the configured secret.
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		if jwtSecret != "" {
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return []byte(jwtSecret), nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil {
				sub, _ := token.Claims.GetSubject()
				if sub == "" {
					sub = "jwt"
				}
				c.Set(principalKey, sub)
				c.Next()
				return
			}
		}

		for _, t := range cfg.StaticTokens {
			t = strings.TrimSpace(t)
			if t != "" && tokenStr == t {
				c.Set(principalKey, "static-token")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}
