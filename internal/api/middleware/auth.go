package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/evtrip/internal/service"
)

// 认证信息在 gin.Context 中的键
const (
	ContextKeyUserID   = "auth_user_id"
	ContextKeyUsername = "auth_username"
)

// TokenValidator 校验访问令牌
type TokenValidator interface {
	ValidateToken(token string) (*service.AuthClaims, error)
}

// JWTAuth 校验 Authorization: Bearer <token>
// 浏览器 WebSocket 无法设置请求头，允许使用 ?token= 查询参数
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		t := c.Query("token")
		return t, t != ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CurrentUserID 当前登录用户 ID，必须在 JWTAuth 之后使用
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
