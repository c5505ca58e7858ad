package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"observation/backend/internal/service"
	"observation/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportActivity 导出活动的时间段与会话
// GET /api/v1/export/activity.xlsx?token=xxx
func (h *ExportHandler) ExportActivity(c *gin.Context) {
	activityID, ok := MustGetSubject(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportActivity(c.Request.Context(), activityID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrActivityNotFound):
		response.NotFound(c, response.CodeActivityNotFound, "活动不存在")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
