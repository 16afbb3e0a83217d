package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mint/internal/pkg/ctxutil"
	apihttp "mint/internal/pkg/http"
	"mint/internal/pkg/jwt"
)

// Auth JWT 认证中间件
// 从 Authorization header 中提取 Bearer token，要求 operator 角色，验证后注入操作者到 context
func Auth(jwtUtil *jwt.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				apihttp.NewErrorResponse(apihttp.CodeUnauthorized, "Unauthorized"))
			return
		}

		// Bearer {token}
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				apihttp.NewErrorResponse(apihttp.CodeUnauthorized, "Invalid authorization header"))
			return
		}

		claims, err := jwtUtil.ValidateToken(parts[1])
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				apihttp.NewErrorResponse(apihttp.CodeTokenInvalid, msg))
			return
		}
		if claims.Role != jwt.RoleOperator {
			c.AbortWithStatusJSON(http.StatusForbidden,
				apihttp.NewErrorResponse(apihttp.CodeUnauthorized, "Operator role required"))
			return
		}

		c.Set("operator", claims.Operator)
		c.Request = c.Request.WithContext(ctxutil.WithOperator(c.Request.Context(), claims.Operator))

		c.Next()
	}
}
