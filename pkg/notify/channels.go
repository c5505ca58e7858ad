package notify

import (
	"fmt"

	"go.uber.org/zap"

	"observation/backend/config"
)

// FromConfig 按配置组装渠道并返回 Dispatcher
func FromConfig(cfg *config.NotifierConfig, logger *zap.Logger) (*Dispatcher, error) {
	var channels []Channel
	for _, name := range cfg.Channels {
		switch name {
		case "log":
			channels = append(channels, NewLogChannel(logger))
		case "mail":
			channels = append(channels, NewMailChannel(&cfg.Mail))
		case "telegram":
			tg, err := NewTelegramChannel(&cfg.Telegram)
			if err != nil {
				return nil, err
			}
			channels = append(channels, tg)
		default:
			return nil, fmt.Errorf("未知通知渠道 %q", name)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, NewLogChannel(logger))
	}
	return NewDispatcher(logger, channels...), nil
}
