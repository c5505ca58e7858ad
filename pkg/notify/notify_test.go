package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"observation/backend/config"
)

type recordingChannel struct {
	name string
	err  error
	got  []Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, _ Recipient, msg Message) error {
	c.got = append(c.got, msg)
	return c.err
}

var testSlot = Slot{
	ActivityName:    "课堂观察",
	Start:           time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	DurationMinutes: 45,
}

func TestDispatcher_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	bad := &recordingChannel{name: "bad", err: errors.New("down")}
	d := NewDispatcher(zap.NewNop(), bad, ok)

	err := d.SendReminder(context.Background(), Recipient{UserID: "u1"}, testSlot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	require.Len(t, ok.got, 1, "失败渠道不应阻断其他渠道")
	assert.Equal(t, KindReminder, ok.got[0].Kind)
}

func TestRender(t *testing.T) {
	for _, kind := range []Kind{KindReminder, KindSignup, KindCancellation} {
		msg := Render(kind, testSlot)
		assert.Equal(t, kind, msg.Kind)
		assert.Contains(t, msg.Subject, "课堂观察")
		assert.Contains(t, msg.Body, "2026-03-02 09:30")
	}
}

func TestMailChannel_Send(t *testing.T) {
	ch := NewMailChannel(&config.MailConfig{APIKey: "SG.key", From: "noreply@example.com", FromName: "Observation"})

	var captured rest.Request
	ch.send = func(_ context.Context, req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: 202}, nil
	}

	err := ch.Send(context.Background(), Recipient{Name: "学生", Email: "stu@example.com"}, Render(KindSignup, testSlot))
	require.NoError(t, err)

	assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", captured.BaseURL)
	assert.Equal(t, "Bearer SG.key", captured.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
			Subject string `json:"subject"`
		} `json:"personalizations"`
	}
	require.NoError(t, json.Unmarshal(captured.Body, &body))
	assert.Equal(t, "noreply@example.com", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "stu@example.com", body.Personalizations[0].To[0].Email)
	assert.Contains(t, body.Personalizations[0].Subject, "报名成功")
}

func TestMailChannel_ErrorStatus(t *testing.T) {
	ch := NewMailChannel(&config.MailConfig{APIKey: "k", From: "a@example.com"})
	ch.send = func(context.Context, rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: 401, Body: "unauthorized"}, nil
	}
	err := ch.Send(context.Background(), Recipient{Email: "x@example.com"}, Message{})
	assert.Error(t, err)
}

func TestMailChannel_SkipsWithoutEmail(t *testing.T) {
	ch := NewMailChannel(&config.MailConfig{APIKey: "k", From: "a@example.com"})
	ch.send = func(context.Context, rest.Request) (*rest.Response, error) {
		t.Fatal("无邮箱时不应发送")
		return nil, nil
	}
	assert.NoError(t, ch.Send(context.Background(), Recipient{UserID: "u"}, Message{}))
}

type fakeTelegram struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramChannel_Send(t *testing.T) {
	fake := &fakeTelegram{}
	ch := &TelegramChannel{api: fake}

	require.NoError(t, ch.Send(context.Background(), Recipient{TelegramChatID: 42}, Render(KindCancellation, testSlot)))
	require.NoError(t, ch.Send(context.Background(), Recipient{}, Render(KindCancellation, testSlot)))

	require.Len(t, fake.sent, 1)
	assert.EqualValues(t, 42, fake.sent[0].ChatID)
	assert.Contains(t, fake.sent[0].Text, "报名已取消")
}

func TestFromConfig(t *testing.T) {
	d, err := FromConfig(&config.NotifierConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, d.channels, 1)
	assert.Equal(t, "log", d.channels[0].Name())

	d, err = FromConfig(&config.NotifierConfig{
		Channels: []string{"log", "mail"},
		Mail:     config.MailConfig{APIKey: "k", From: "a@example.com"},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, d.channels, 2)

	_, err = FromConfig(&config.NotifierConfig{Channels: []string{"fax"}}, zap.NewNop())
	assert.Error(t, err)
}
