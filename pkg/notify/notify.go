// Package notify 观察活动的消息通知：报名确认、取消通知、开始前提醒
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Kind 通知类型
type Kind string

const (
	KindReminder     Kind = "reminder"
	KindSignup       Kind = "signup_confirmation"
	KindCancellation Kind = "cancellation"
)

// Recipient 收件人及其联系方式
type Recipient struct {
	UserID         string
	Name           string
	Email          string
	TelegramChatID int64
}

// Slot 通知涉及的时间段信息
type Slot struct {
	ActivityName    string
	Start           time.Time
	DurationMinutes int
}

// Message 渲染后的通知内容
type Message struct {
	Kind    Kind
	Subject string
	Body    string
}

// Channel 单个投递渠道
type Channel interface {
	Name() string
	Send(ctx context.Context, to Recipient, msg Message) error
}

// Dispatcher 按通知类型渲染消息并投递到全部渠道
// 某个渠道失败不影响其他渠道，错误合并返回
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger}
}

// SendReminder 时间段开始前提醒
func (d *Dispatcher) SendReminder(ctx context.Context, to Recipient, slot Slot) error {
	return d.dispatch(ctx, to, Render(KindReminder, slot))
}

// SendSignupConfirmation 报名成功通知
func (d *Dispatcher) SendSignupConfirmation(ctx context.Context, to Recipient, slot Slot) error {
	return d.dispatch(ctx, to, Render(KindSignup, slot))
}

// SendCancellation 报名被取消通知
func (d *Dispatcher) SendCancellation(ctx context.Context, to Recipient, slot Slot) error {
	return d.dispatch(ctx, to, Render(KindCancellation, slot))
}

func (d *Dispatcher) dispatch(ctx context.Context, to Recipient, msg Message) error {
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, to, msg); err != nil {
			d.logger.Warn("通知投递失败",
				zap.String("channel", ch.Name()),
				zap.String("kind", string(msg.Kind)),
				zap.String("user_id", to.UserID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Render 生成通知标题与正文
func Render(kind Kind, slot Slot) Message {
	when := slot.Start.Format("2006-01-02 15:04 MST")
	msg := Message{Kind: kind}

	switch kind {
	case KindReminder:
		msg.Subject = fmt.Sprintf("观察提醒：%s", slot.ActivityName)
		msg.Body = fmt.Sprintf("您在「%s」的观察时间段将于 %s 开始，时长 %d 分钟。", slot.ActivityName, when, slot.DurationMinutes)
	case KindSignup:
		msg.Subject = fmt.Sprintf("报名成功：%s", slot.ActivityName)
		msg.Body = fmt.Sprintf("您已报名「%s」%s 的观察时间段，时长 %d 分钟。", slot.ActivityName, when, slot.DurationMinutes)
	case KindCancellation:
		msg.Subject = fmt.Sprintf("报名已取消：%s", slot.ActivityName)
		msg.Body = fmt.Sprintf("您在「%s」%s 的观察时间段报名已取消。", slot.ActivityName, when)
	}
	return msg
}

// LogChannel 仅写日志的渠道，用于开发环境或未配置外部渠道时
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel 创建 LogChannel
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, to Recipient, msg Message) error {
	c.logger.Info("发送通知",
		zap.String("kind", string(msg.Kind)),
		zap.String("user_id", to.UserID),
		zap.String("subject", msg.Subject),
	)
	return nil
}
