package service

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"observation/backend/internal/model"
	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
)

// ── ICS 日历 ──────────────────────────────────────────────
//
// 事件保存在 calendar_events 表，按用户渲染为 iCalendar (RFC 5545) 订阅源。
// 事件引用为 UUID，同时作为 VEVENT 的 UID。
// ─────────────────────────────────────────────────────────────

const icsProductID = "-//observation//timeslots//ZH"

// ICSCalendar 基于本地事件表的 CalendarSync 实现
type ICSCalendar struct {
	repo *repository.Repository
}

// NewICSCalendar 创建 ICSCalendar 实例
func NewICSCalendar(repo *repository.Repository) *ICSCalendar {
	return &ICSCalendar{repo: repo}
}

// WithTx 返回绑定到 tx 的日历，事件与时间段在同一事务内写入
func (c *ICSCalendar) WithTx(tx *repository.Repository) CalendarSync {
	return &ICSCalendar{repo: tx}
}

func (c *ICSCalendar) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	event := &model.CalendarEvent{
		EventRef:    uuid.NewString(),
		UserID:      ev.UserID,
		TimeslotID:  ev.TimeslotID,
		Summary:     ev.Summary,
		Description: ev.Description,
		StartAt:     ev.Start,
		EndAt:       ev.End,
	}
	if err := c.repo.CalendarEvent.Create(ctx, event); err != nil {
		return "", fmt.Errorf("写入日历事件失败: %w", err)
	}
	return event.EventRef, nil
}

func (c *ICSCalendar) UpdateEvent(ctx context.Context, ref string, ev CalendarEvent) error {
	event, err := c.repo.CalendarEvent.GetByRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("查询日历事件 %s 失败: %w", ref, err)
	}

	event.UserID = ev.UserID
	event.TimeslotID = ev.TimeslotID
	event.Summary = ev.Summary
	event.Description = ev.Description
	event.StartAt = ev.Start
	event.EndAt = ev.End
	if err := c.repo.CalendarEvent.Update(ctx, event); err != nil {
		return fmt.Errorf("更新日历事件失败: %w", err)
	}
	return nil
}

// DeleteEvent 事件不存在时视为成功
func (c *ICSCalendar) DeleteEvent(ctx context.Context, ref string) error {
	if err := c.repo.CalendarEvent.Delete(ctx, ref); err != nil && !pkgerrors.IsNotFound(err) {
		return fmt.Errorf("删除日历事件失败: %w", err)
	}
	return nil
}

// RenderFeed 渲染用户的全部观察事件为 iCalendar 文本
func (c *ICSCalendar) RenderFeed(ctx context.Context, userID string) (string, error) {
	events, err := c.repo.CalendarEvent.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("查询日历事件失败: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)

	for _, e := range events {
		vevent := cal.AddEvent(e.EventRef)
		vevent.SetDtStampTime(e.UpdatedAt.UTC())
		vevent.SetStartAt(time.Unix(e.StartAt, 0).UTC())
		vevent.SetEndAt(time.Unix(e.EndAt, 0).UTC())
		vevent.SetSummary(e.Summary)
		if e.Description != "" {
			vevent.SetDescription(e.Description)
		}
	}

	return cal.Serialize(), nil
}
