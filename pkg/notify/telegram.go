package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"observation/backend/config"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel 通过 Telegram 机器人发送消息
type TelegramChannel struct {
	api telegramSender
}

// NewTelegramChannel 创建 TelegramChannel，会调用 getMe 校验 token
func NewTelegramChannel(cfg *config.TelegramConfig) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("创建 Telegram 客户端失败: %w", err)
	}
	return &TelegramChannel{api: api}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Send 收件人未绑定 Telegram 时跳过
func (c *TelegramChannel) Send(_ context.Context, to Recipient, msg Message) error {
	if to.TelegramChatID == 0 {
		return nil
	}
	m := tgbotapi.NewMessage(to.TelegramChatID, msg.Subject+"\n\n"+msg.Body)
	if _, err := c.api.Send(m); err != nil {
		return fmt.Errorf("Telegram 发送失败: %w", err)
	}
	return nil
}
