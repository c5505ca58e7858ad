package service

import (
	"context"
	"fmt"

	"observation/backend/internal/repository"
	pkgerrors "observation/backend/pkg/errors"
	"observation/backend/pkg/notify"
)

// participantDirectory 基于 activity_participants 表的课程名册
type participantDirectory struct {
	repo *repository.Repository
}

// NewParticipantDirectory 创建基于本地参与者表的 EnrollmentDirectory
func NewParticipantDirectory(repo *repository.Repository) EnrollmentDirectory {
	return &participantDirectory{repo: repo}
}

func (d *participantDirectory) ListParticipants(ctx context.Context, activityID string) ([]string, error) {
	list, err := d.repo.Participant.List(ctx, activityID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (d *participantDirectory) ListParticipantsWithCapability(ctx context.Context, activityID, capability string) ([]string, error) {
	if capability != CapabilityPerformObservation {
		return nil, fmt.Errorf("未知能力 %q", capability)
	}
	list, err := d.repo.Participant.ListObservers(ctx, activityID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// Contact 不在名册中的用户只返回 UserID，由日志渠道兜底
func (d *participantDirectory) Contact(ctx context.Context, activityID, userID string) (notify.Recipient, error) {
	p, err := d.repo.Participant.Get(ctx, activityID, userID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return notify.Recipient{UserID: userID}, nil
		}
		return notify.Recipient{}, err
	}
	return notify.Recipient{
		UserID:         p.UserID,
		Name:           p.Name,
		Email:          p.Email,
		TelegramChatID: p.TelegramChatID,
	}, nil
}
