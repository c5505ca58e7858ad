package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"observation/backend/pkg/jwt"
	"observation/backend/pkg/response"
)

// SubjectKey 签名链接校验通过后写入上下文的 subject
const SubjectKey = "link_subject"

// SignedLink 签名链接认证中间件
// 从查询参数 token 中提取令牌，校验用途后将 subject 注入上下文
func SignedLink(links *jwt.Manager, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.LinkInvalid(c, "缺少链接令牌")
			return
		}

		subject, err := links.Verify(token, scope)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.LinkExpired(c)
				return
			}
			response.LinkInvalid(c, "链接无效")
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}
