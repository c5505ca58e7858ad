package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务错误码
// 1xxxx 链接令牌，16xxx 导出，5xxxx 服务端
const (
	CodeLinkInvalid      = 10002
	CodeLinkExpired      = 10003
	CodeActivityNotFound = 16101
	CodeInternal         = 50000
)

// ErrorBody 错误响应体；成功的下载类接口直接返回文件内容
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error 终止请求并写入错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Code:    code,
		Message: message,
	})
}

// LinkInvalid 401，令牌缺失、签名错误或用途不符
func LinkInvalid(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeLinkInvalid, message)
}

// LinkExpired 401，令牌已过期，需重新获取链接
func LinkExpired(c *gin.Context) {
	Error(c, http.StatusUnauthorized, CodeLinkExpired, "链接已过期，请重新获取")
}

// NotFound 404
func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "服务器内部错误")
}
