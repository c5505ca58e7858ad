package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"observation/backend/internal/api/handler"
	"observation/backend/internal/api/middleware"
	"observation/backend/pkg/jwt"
	"observation/backend/pkg/metrics"
)

// Setup 初始化并返回 Gin 路由引擎
// links 未启用时只注册健康检查与指标端点
func Setup(h *handler.Handler, links *jwt.Manager, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if !links.Enabled() {
		logger.Warn("未配置 link.secret，日历订阅与导出下载未开放")
		return r
	}

	// ── API v1（签名链接） ──
	r.GET(handler.CalendarFeedPath, middleware.NoStore(), middleware.SignedLink(links, jwt.ScopeCalendar), h.Calendar.Feed)
	r.GET(handler.ExportPath, middleware.NoStore(), middleware.SignedLink(links, jwt.ScopeExport), h.Export.ExportActivity)

	return r
}
