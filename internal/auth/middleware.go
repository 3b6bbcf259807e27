package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"
)

// ExtractTokenFromBearer 从 Authorization 头中提取纯令牌
func ExtractTokenFromBearer(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware JWT 认证中间件
// 验证通过后把租户上下文写入请求 Context，下游服务统一从那里取身份。
func Middleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, common.ErrorResponse(common.CodeUnauthorized, "缺少认证令牌"))
			c.Abort()
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			c.JSON(http.StatusUnauthorized, common.ErrorResponse(common.CodeUnauthorized, "无效的令牌格式"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, common.ErrorResponse(common.CodeUnauthorized, "令牌验证失败: "+err.Error()))
			c.Abort()
			return
		}

		ctx := tenant.WithTenantContext(c.Request.Context(), tenant.TenantContext{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			Roles:    claims.Roles,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
