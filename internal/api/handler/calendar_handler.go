package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"observation/backend/pkg/response"
)

// FeedRenderer 渲染用户的 iCalendar 订阅源
type FeedRenderer interface {
	RenderFeed(ctx context.Context, userID string) (string, error)
}

// CalendarHandler 日历订阅 HTTP 处理器
type CalendarHandler struct {
	feeds FeedRenderer
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(feeds FeedRenderer) *CalendarHandler {
	return &CalendarHandler{feeds: feeds}
}

// Feed 用户的观察时间段日历
// GET /api/v1/calendar/feed.ics?token=xxx
func (h *CalendarHandler) Feed(c *gin.Context) {
	userID, ok := MustGetSubject(c)
	if !ok {
		return
	}

	body, err := h.feeds.RenderFeed(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}

	c.Header("Content-Disposition", `inline; filename="observation.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}
