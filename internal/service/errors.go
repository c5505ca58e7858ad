package service

import (
	"errors"
	"fmt"
)

// ── 错误分类 ──
// 具体业务错误均包装其中一个分类，调用方可用 errors.Is 按分类处理

var (
	ErrValidation         = errors.New("参数校验失败")
	ErrStateConflict      = errors.New("状态冲突")
	ErrNotFound           = errors.New("记录不存在")
	ErrGradeInconsistency = errors.New("成绩数据不一致")
	ErrExternalSink       = errors.New("外部系统调用失败")
)

// ── 校验错误 ──

var (
	ErrInvalidResponseType = fmt.Errorf("%w: 未知的作答类型", ErrValidation)
	ErrInvalidGrade        = fmt.Errorf("%w: 分数超出范围", ErrValidation)
	ErrMissingResponse     = fmt.Errorf("%w: 作答内容不能为空", ErrValidation)
)

// ── 状态冲突 ──

var (
	ErrSlotTaken         = fmt.Errorf("%w: 时间段已被占用", ErrStateConflict)
	ErrAlreadyRegistered = fmt.Errorf("%w: 已报名本活动的其他时间段", ErrStateConflict)
	ErrNotRegistered     = fmt.Errorf("%w: 未报名该时间段", ErrStateConflict)
	ErrUnenrolNotAllowed = fmt.Errorf("%w: 本活动不允许学生自行取消报名", ErrStateConflict)
	ErrRateLimited       = fmt.Errorf("%w: 会话刚刚开始，请稍后再试", ErrStateConflict)
	ErrSessionNotActive  = fmt.Errorf("%w: 会话状态不允许该操作", ErrStateConflict)
)

// ── 记录不存在 ──

var (
	ErrActivityNotFound     = fmt.Errorf("%w: 活动不存在", ErrNotFound)
	ErrPointNotFound        = fmt.Errorf("%w: 评分点不存在", ErrNotFound)
	ErrTimeslotNotFound     = fmt.Errorf("%w: 时间段不存在", ErrNotFound)
	ErrSessionNotFound      = fmt.Errorf("%w: 会话不存在", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("%w: 提醒不存在", ErrNotFound)
)

// ── 成绩与外部系统 ──

var (
	ErrGradeExceedsMax     = fmt.Errorf("%w: 已记录的分数超过评分点当前满分", ErrGradeInconsistency)
	ErrGradebookSyncFailed = fmt.Errorf("%w: 成绩册同步失败", ErrExternalSink)
	ErrCalendarSyncFailed  = fmt.Errorf("%w: 日历同步失败", ErrExternalSink)
)

// ValidationError 字段级校验错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// isDomainError 业务错误无需在服务层记录错误日志
func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrGradeInconsistency) ||
		errors.Is(err, ErrExternalSink)
}
