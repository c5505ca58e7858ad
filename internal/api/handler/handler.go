package handler

import (
	"observation/backend/internal/service"
	"observation/backend/pkg/jwt"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Calendar *CalendarHandler
	Export   *ExportHandler
	Links    *LinkBuilder
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, links *jwt.Manager) *Handler {
	return &Handler{
		Calendar: NewCalendarHandler(svc.Calendar),
		Export:   NewExportHandler(svc.Export),
		Links:    NewLinkBuilder(links),
	}
}
