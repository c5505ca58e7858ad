package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"observation/backend/config"
)

const sendgridEndpoint = "/v3/mail/send"

// MailChannel 通过 SendGrid 发送邮件
type MailChannel struct {
	key  string
	from *sgmail.Email
	send func(ctx context.Context, req rest.Request) (*rest.Response, error)
}

// NewMailChannel 创建 MailChannel
func NewMailChannel(cfg *config.MailConfig) *MailChannel {
	return &MailChannel{
		key:  cfg.APIKey,
		from: sgmail.NewEmail(cfg.FromName, cfg.From),
		send: sendgrid.MakeRequestWithContext,
	}
}

func (c *MailChannel) Name() string { return "mail" }

// Send 收件人没有邮箱时跳过
func (c *MailChannel) Send(ctx context.Context, to Recipient, msg Message) error {
	if to.Email == "" {
		return nil
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(to.Name, to.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(c.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))

	req := sendgrid.GetRequest(c.key, sendgridEndpoint, "")
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := c.send(ctx, req)
	if err != nil {
		return fmt.Errorf("SendGrid 请求失败: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("SendGrid 返回 HTTP %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
