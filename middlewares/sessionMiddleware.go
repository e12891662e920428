package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/utils"
)

const revokedTokenPrefix = "exchange:revoked:"

func bearerToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Request.Header.Get("token")); token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
	const bearer = "Bearer "
	if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
		return strings.TrimSpace(auth[len(bearer):])
	}
	return ""
}

// SessionMiddleware validates the JWT when one is sent and stores the session in the
// request context. Requests without a token pass through anonymous.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, err := utils.JwtValidate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if rdb := config.GetRedisDB(); rdb != nil {
			n, err := rdb.Exists(c.Request.Context(), revokedTokenPrefix+token).Result()
			if err == nil && n > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}
		ctx := utils.SetSessionInContext(c.Request.Context(), claims, token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RevokeToken blocks a token until it would have expired anyway. No-op without Redis.
func RevokeToken(c *gin.Context) error {
	token := bearerToken(c)
	rdb := config.GetRedisDB()
	if token == "" || rdb == nil {
		return nil
	}
	claims, err := utils.JwtValidate(token)
	if err != nil {
		return nil
	}
	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}
	return rdb.Set(c.Request.Context(), revokedTokenPrefix+token, claims.ID, ttl).Err()
}

func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id, ok := utils.GetUserIdFromContext(ctx); !ok || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}
