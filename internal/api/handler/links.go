package handler

import (
	"net/url"

	"observation/backend/pkg/jwt"
)

// 签名链接路径，与 router 中注册的路由一致
const (
	CalendarFeedPath = "/api/v1/calendar/feed.ics"
	ExportPath       = "/api/v1/export/activity.xlsx"
)

// LinkBuilder 生成带签名令牌的相对链接，供日历客户端订阅与下载导出文件
type LinkBuilder struct {
	links *jwt.Manager
}

// NewLinkBuilder 创建 LinkBuilder
func NewLinkBuilder(links *jwt.Manager) *LinkBuilder {
	return &LinkBuilder{links: links}
}

// CalendarFeed 用户日历订阅链接
func (b *LinkBuilder) CalendarFeed(userID string) (string, error) {
	return b.build(CalendarFeedPath, jwt.ScopeCalendar, userID)
}

// Export 活动导出下载链接
func (b *LinkBuilder) Export(activityID string) (string, error) {
	return b.build(ExportPath, jwt.ScopeExport, activityID)
}

func (b *LinkBuilder) build(path, scope, subject string) (string, error) {
	token, err := b.links.Generate(scope, subject)
	if err != nil {
		return "", err
	}
	return path + "?" + url.Values{"token": {token}}.Encode(), nil
}
