package handler

import (
	"github.com/gin-gonic/gin"

	"observation/backend/internal/api/middleware"
	"observation/backend/pkg/response"
)

// MustGetSubject 从 Gin 上下文中安全提取签名链接的 subject。
// 如果中间件未注入 subject，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetSubject(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.SubjectKey)
	if !exists {
		response.LinkInvalid(c, "链接无效")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.LinkInvalid(c, "链接无效")
		return "", false
	}
	return s, true
}
