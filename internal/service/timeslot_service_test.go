package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"observation/backend/internal/dto"
	"observation/backend/internal/model"
	"observation/backend/pkg/notify"
)

// ── 测试辅助 ──

type timeslotFixture struct {
	svc      TimeslotService
	store    *memStore
	calendar *fakeCalendar
	notifier *fakeNotifier
	activity *model.Activity
}

func setupTestTimeslotService(selfUnregister bool) *timeslotFixture {
	repo, store := newMockRepository()
	calendar := newFakeCalendar()
	notifier := &fakeNotifier{}
	activity := seedActivity(store, selfUnregister)
	svc := NewTimeslotService(repo, calendar, notifier, NewParticipantDirectory(repo), time.UTC, zap.NewNop())
	return &timeslotFixture{svc: svc, store: store, calendar: calendar, notifier: notifier, activity: activity}
}

func (f *timeslotFixture) signup(t *testing.T, slotID, userID string) error {
	t.Helper()
	_, err := f.svc.Signup(context.Background(), &dto.SignupRequest{
		ActivityID: f.activity.ActivityID,
		TimeslotID: slotID,
		UserID:     userID,
	})
	return err
}

// ── Create / Update ──

func TestTimeslotService_Create_SyncsCalendar(t *testing.T) {
	f := setupTestTimeslotService(false)
	observee := "student-1"

	resp, err := f.svc.Create(context.Background(), &dto.CreateTimeslotRequest{
		ActivityID:      f.activity.ActivityID,
		StartTime:       3600,
		DurationMinutes: 45,
		ObserverID:      "teacher-1",
		ObserveeID:      &observee,
	}, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3600+45*60), resp.EndTime)

	slot := f.store.slots[resp.ID]
	require.NotNil(t, slot.ObserverEventRef)
	require.NotNil(t, slot.ObserveeEventRef)
	assert.Equal(t, "teacher-1", f.calendar.events[*slot.ObserverEventRef].UserID)
	assert.Equal(t, "student-1", f.calendar.events[*slot.ObserveeEventRef].UserID)
	assert.Equal(t, int64(3600), f.calendar.events[*slot.ObserverEventRef].Start)
}

func TestTimeslotService_Create_CalendarFailure(t *testing.T) {
	f := setupTestTimeslotService(false)
	f.calendar.failCreate = errors.New("calendar down")

	_, err := f.svc.Create(context.Background(), &dto.CreateTimeslotRequest{
		ActivityID:      f.activity.ActivityID,
		StartTime:       3600,
		DurationMinutes: 30,
		ObserverID:      "teacher-1",
	}, "teacher-1")
	assert.ErrorIs(t, err, ErrCalendarSyncFailed)
	assert.ErrorIs(t, err, ErrExternalSink)
}

func TestTimeslotService_Create_Validation(t *testing.T) {
	f := setupTestTimeslotService(false)

	_, err := f.svc.Create(context.Background(), &dto.CreateTimeslotRequest{
		ActivityID:      f.activity.ActivityID,
		StartTime:       3600,
		DurationMinutes: 0,
		ObserverID:      "teacher-1",
	}, "teacher-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTimeslotService_Update_MovesEvents(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, &dto.CreateTimeslotRequest{
		ActivityID: f.activity.ActivityID, StartTime: 3600, DurationMinutes: 30, ObserverID: "teacher-1",
	}, "teacher-1")
	require.NoError(t, err)
	ref := *f.store.slots[created.ID].ObserverEventRef

	_, err = f.svc.Update(ctx, created.ID, &dto.UpdateTimeslotRequest{
		StartTime: 7200, DurationMinutes: 60, ObserverID: "teacher-2",
	}, "teacher-1")
	require.NoError(t, err)

	slot := f.store.slots[created.ID]
	assert.Equal(t, ref, *slot.ObserverEventRef)
	assert.Equal(t, "teacher-2", f.calendar.events[ref].UserID)
	assert.Equal(t, int64(7200+3600), f.calendar.events[ref].End)
}

func TestTimeslotService_Update_RemovesObserveeEvent(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()
	observee := "student-1"

	created, err := f.svc.Create(ctx, &dto.CreateTimeslotRequest{
		ActivityID: f.activity.ActivityID, StartTime: 3600, DurationMinutes: 30,
		ObserverID: "teacher-1", ObserveeID: &observee,
	}, "teacher-1")
	require.NoError(t, err)
	observeeRef := *f.store.slots[created.ID].ObserveeEventRef

	_, err = f.svc.Update(ctx, created.ID, &dto.UpdateTimeslotRequest{
		StartTime: 3600, DurationMinutes: 30, ObserverID: "teacher-1",
	}, "teacher-1")
	require.NoError(t, err)

	assert.Nil(t, f.store.slots[created.ID].ObserveeID)
	assert.Nil(t, f.store.slots[created.ID].ObserveeEventRef)
	assert.NotContains(t, f.calendar.events, observeeRef)
}

func TestTimeslotService_Update_ChangedObserveeDropsNotifications(t *testing.T) {
	tests := []struct {
		name     string
		observee *string
	}{
		{"更换被观察者", ptr("student-2")},
		{"清空被观察者", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestTimeslotService(false)
			ctx := context.Background()
			slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")
			require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))
			f.store.notifications["n-1"] = &model.TimeslotNotification{NotificationID: "n-1", TimeslotID: slot.TimeslotID, OffsetSeconds: 600}

			_, err := f.svc.Update(ctx, slot.TimeslotID, &dto.UpdateTimeslotRequest{
				StartTime: 3600, DurationMinutes: 30, ObserverID: "teacher-1", ObserveeID: tt.observee,
			}, "teacher-1")
			require.NoError(t, err)
			assert.Empty(t, f.store.notifications)
		})
	}
}

func TestTimeslotService_Update_SameObserveeKeepsNotifications(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")
	require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))
	f.store.notifications["n-1"] = &model.TimeslotNotification{NotificationID: "n-1", TimeslotID: slot.TimeslotID, OffsetSeconds: 600}

	_, err := f.svc.Update(ctx, slot.TimeslotID, &dto.UpdateTimeslotRequest{
		StartTime: 7200, DurationMinutes: 30, ObserverID: "teacher-1", ObserveeID: ptr("student-1"),
	}, "teacher-1")
	require.NoError(t, err)
	assert.Contains(t, f.store.notifications, "n-1")
}

// ── GenerateByInterval ──

func TestTimeslotService_GenerateByInterval(t *testing.T) {
	f := setupTestTimeslotService(false)

	slots, err := f.svc.GenerateByInterval(context.Background(), &dto.GenerateTimeslotsRequest{
		ActivityID:         f.activity.ActivityID,
		StartTime:          1000,
		DurationMinutes:    20,
		ObserverID:         "teacher-1",
		IntervalAmount:     30,
		IntervalMultiplier: 60,
		EndTime:            1000 + 3600,
	}, "teacher-1")
	require.NoError(t, err)

	require.Len(t, slots, 2)
	assert.Equal(t, int64(1000), slots[0].StartTime)
	assert.Equal(t, int64(2800), slots[1].StartTime)
	assert.Len(t, f.store.slots, 2)
	assert.Len(t, f.calendar.events, 2)
}

func TestTimeslotService_GenerateByInterval_Count(t *testing.T) {
	tests := []struct {
		name  string
		span  int64
		step  int64
		count int
	}{
		{"结束等于开始", 0, 60, 0},
		{"整除", 600, 60, 10},
		{"不整除向上取整", 610, 60, 11},
		{"步长大于区间", 30, 60, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestTimeslotService(false)
			slots, err := f.svc.GenerateByInterval(context.Background(), &dto.GenerateTimeslotsRequest{
				ActivityID:         f.activity.ActivityID,
				StartTime:          5000,
				DurationMinutes:    10,
				ObserverID:         "teacher-1",
				IntervalAmount:     tt.step,
				IntervalMultiplier: 1,
				EndTime:            5000 + tt.span,
			}, "teacher-1")
			require.NoError(t, err)
			assert.Len(t, slots, tt.count)
		})
	}
}

func TestTimeslotService_GenerateByInterval_Validation(t *testing.T) {
	f := setupTestTimeslotService(false)

	tests := []struct {
		name string
		req  dto.GenerateTimeslotsRequest
	}{
		{"间隔为0", dto.GenerateTimeslotsRequest{IntervalAmount: 0, IntervalMultiplier: 60, StartTime: 10, EndTime: 100}},
		{"倍数为0", dto.GenerateTimeslotsRequest{IntervalAmount: 1, IntervalMultiplier: 0, StartTime: 10, EndTime: 100}},
		{"结束早于开始", dto.GenerateTimeslotsRequest{IntervalAmount: 1, IntervalMultiplier: 60, StartTime: 100, EndTime: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.ActivityID = f.activity.ActivityID
			req.ObserverID = "teacher-1"
			req.DurationMinutes = 10
			_, err := f.svc.GenerateByInterval(context.Background(), &req, "teacher-1")
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, f.store.slots)
}

func TestTimeslotService_GenerateByInterval_StepOverflow(t *testing.T) {
	f := setupTestTimeslotService(false)

	_, err := f.svc.GenerateByInterval(context.Background(), &dto.GenerateTimeslotsRequest{
		ActivityID:         f.activity.ActivityID,
		StartTime:          0,
		DurationMinutes:    10,
		ObserverID:         "teacher-1",
		IntervalAmount:     1 << 62,
		IntervalMultiplier: 4,
		EndTime:            100,
	}, "teacher-1")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "interval_multiplier", verr.Field)
	assert.Empty(t, f.store.slots)
}

func TestTimeslotService_GenerateByInterval_NearMaxTime(t *testing.T) {
	f := setupTestTimeslotService(false)

	// 末尾时间段之后再加步长会越过 int64 上限
	start := int64(math.MaxInt64 - 150)
	slots, err := f.svc.GenerateByInterval(context.Background(), &dto.GenerateTimeslotsRequest{
		ActivityID:         f.activity.ActivityID,
		StartTime:          start,
		DurationMinutes:    1,
		ObserverID:         "teacher-1",
		IntervalAmount:     100,
		IntervalMultiplier: 1,
		EndTime:            math.MaxInt64,
	}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, start, slots[0].StartTime)
	assert.Equal(t, start+100, slots[1].StartTime)
}

func TestTimeslotService_GenerateByInterval_Limit(t *testing.T) {
	repo, store := newMockRepository()
	activity := seedActivity(store, false)
	svc := NewTimeslotService(repo, newFakeCalendar(), &fakeNotifier{}, NewParticipantDirectory(repo), time.UTC, zap.NewNop(),
		WithMaxGeneratedSlots(5))

	req := &dto.GenerateTimeslotsRequest{
		ActivityID:         activity.ActivityID,
		StartTime:          0,
		DurationMinutes:    1,
		ObserverID:         "teacher-1",
		IntervalAmount:     1,
		IntervalMultiplier: 60,
		EndTime:            6 * 60,
	}
	_, err := svc.GenerateByInterval(context.Background(), req, "teacher-1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)
	assert.Empty(t, store.slots)

	req.EndTime = 5 * 60
	slots, err := svc.GenerateByInterval(context.Background(), req, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, slots, 5)
}

func TestTimeslotService_GenerateByInterval_DefaultLimit(t *testing.T) {
	f := setupTestTimeslotService(false)

	_, err := f.svc.GenerateByInterval(context.Background(), &dto.GenerateTimeslotsRequest{
		ActivityID:         f.activity.ActivityID,
		StartTime:          0,
		DurationMinutes:    1,
		ObserverID:         "teacher-1",
		IntervalAmount:     1,
		IntervalMultiplier: 1,
		EndTime:            1 << 40,
	}, "teacher-1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.store.slots)
}

// ── Signup ──

func TestTimeslotService_Signup(t *testing.T) {
	f := setupTestTimeslotService(false)
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")

	require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))

	stored := f.store.slots[slot.TimeslotID]
	require.NotNil(t, stored.ObserveeID)
	assert.Equal(t, "student-1", *stored.ObserveeID)
	require.NotNil(t, stored.ObserveeEventRef)
	assert.Equal(t, "student-1", f.calendar.events[*stored.ObserveeEventRef].UserID)

	sent := f.notifier.byKind(notify.KindSignup)
	require.Len(t, sent, 1)
	assert.Equal(t, "student-1", sent[0].UserID)
	assert.Equal(t, "课堂观察", sent[0].Slot.ActivityName)
}

func TestTimeslotService_Signup_Conflicts(t *testing.T) {
	f := setupTestTimeslotService(false)
	slot1 := seedSlot(f.store, f.activity.ActivityID, 3600, "")
	slot2 := seedSlot(f.store, f.activity.ActivityID, 7200, "")

	require.NoError(t, f.signup(t, slot1.TimeslotID, "student-1"))

	err := f.signup(t, slot1.TimeslotID, "student-2")
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.ErrorIs(t, err, ErrStateConflict)

	err = f.signup(t, slot2.TimeslotID, "student-1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	assert.Nil(t, f.store.slots[slot2.TimeslotID].ObserveeID)
	assert.Len(t, f.notifier.byKind(notify.KindSignup), 1)
}

func TestTimeslotService_Signup_LostRace(t *testing.T) {
	f := setupTestTimeslotService(false)
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")

	// 模拟读取后被其他请求抢先占用
	f.store.assignHook = func(string, string) (bool, bool, error) { return true, false, nil }

	err := f.signup(t, slot.TimeslotID, "student-1")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestTimeslotService_Signup_NotFound(t *testing.T) {
	f := setupTestTimeslotService(false)
	other := seedActivity(f.store, false)
	foreign := seedSlot(f.store, other.ActivityID, 3600, "")

	assert.ErrorIs(t, f.signup(t, "missing", "student-1"), ErrTimeslotNotFound)
	assert.ErrorIs(t, f.signup(t, foreign.TimeslotID, "student-1"), ErrTimeslotNotFound)
}

func TestTimeslotService_Signup_NotifierFailureIgnored(t *testing.T) {
	f := setupTestTimeslotService(false)
	f.notifier.err = errors.New("smtp down")
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")

	require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))
	assert.NotNil(t, f.store.slots[slot.TimeslotID].ObserveeID)
}

// ── Unenrol / RemoveObservee ──

func TestTimeslotService_Unenrol(t *testing.T) {
	f := setupTestTimeslotService(true)
	ctx := context.Background()
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")
	require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))
	eventRef := *f.store.slots[slot.TimeslotID].ObserveeEventRef
	f.store.notifications["n-1"] = &model.TimeslotNotification{NotificationID: "n-1", TimeslotID: slot.TimeslotID, OffsetSeconds: 600}

	require.NoError(t, f.svc.Unenrol(ctx, f.activity.ActivityID, slot.TimeslotID, "student-1"))

	stored := f.store.slots[slot.TimeslotID]
	assert.Nil(t, stored.ObserveeID)
	assert.Nil(t, stored.ObserveeEventRef)
	assert.Empty(t, f.store.notifications)
	assert.NotContains(t, f.calendar.events, eventRef)
	assert.Len(t, f.notifier.byKind(notify.KindCancellation), 1)

	// 取消后可重新报名
	require.NoError(t, f.signup(t, slot.TimeslotID, "student-2"))
}

func TestTimeslotService_Unenrol_Rejected(t *testing.T) {
	t.Run("活动不允许自行取消", func(t *testing.T) {
		f := setupTestTimeslotService(false)
		slot := seedSlot(f.store, f.activity.ActivityID, 3600, "student-1")

		err := f.svc.Unenrol(context.Background(), f.activity.ActivityID, slot.TimeslotID, "student-1")
		assert.ErrorIs(t, err, ErrUnenrolNotAllowed)
		assert.NotNil(t, f.store.slots[slot.TimeslotID].ObserveeID)
	})

	t.Run("非本人时间段", func(t *testing.T) {
		f := setupTestTimeslotService(true)
		slot := seedSlot(f.store, f.activity.ActivityID, 3600, "student-1")

		err := f.svc.Unenrol(context.Background(), f.activity.ActivityID, slot.TimeslotID, "student-2")
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("空闲时间段", func(t *testing.T) {
		f := setupTestTimeslotService(true)
		slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")

		err := f.svc.Unenrol(context.Background(), f.activity.ActivityID, slot.TimeslotID, "student-1")
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestTimeslotService_RemoveObservee(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "student-1")
	empty := seedSlot(f.store, f.activity.ActivityID, 7200, "")

	require.NoError(t, f.svc.RemoveObservee(ctx, f.activity.ActivityID, slot.TimeslotID, "teacher-1"))
	assert.Nil(t, f.store.slots[slot.TimeslotID].ObserveeID)

	cancelled := f.notifier.byKind(notify.KindCancellation)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "student-1", cancelled[0].UserID)

	err := f.svc.RemoveObservee(ctx, f.activity.ActivityID, empty.TimeslotID, "teacher-1")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

// ── Delete ──

func TestTimeslotService_Delete(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()
	slot := seedSlot(f.store, f.activity.ActivityID, 3600, "")
	require.NoError(t, f.signup(t, slot.TimeslotID, "student-1"))
	f.store.notifications["n-1"] = &model.TimeslotNotification{NotificationID: "n-1", TimeslotID: slot.TimeslotID, OffsetSeconds: 600}

	require.NoError(t, f.svc.Delete(ctx, f.activity.ActivityID, slot.TimeslotID, "teacher-1"))

	assert.Empty(t, f.store.slots)
	assert.Empty(t, f.store.notifications)
	assert.Empty(t, f.calendar.events)
	assert.Len(t, f.notifier.byKind(notify.KindCancellation), 1)
}

func TestTimeslotService_Delete_CalendarFailureIgnored(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, &dto.CreateTimeslotRequest{
		ActivityID: f.activity.ActivityID, StartTime: 3600, DurationMinutes: 30, ObserverID: "teacher-1",
	}, "teacher-1")
	require.NoError(t, err)
	f.calendar.failDelete = errors.New("calendar down")

	require.NoError(t, f.svc.Delete(ctx, f.activity.ActivityID, created.ID, "teacher-1"))
	assert.Empty(t, f.store.slots)
	assert.Empty(t, f.notifier.byKind(notify.KindCancellation))
}

// ── 查询 ──

func TestTimeslotService_Queries(t *testing.T) {
	f := setupTestTimeslotService(false)
	ctx := context.Background()
	seedSlot(f.store, f.activity.ActivityID, 7200, "student-1")
	seedSlot(f.store, f.activity.ActivityID, 3600, "")

	all, err := f.svc.List(ctx, f.activity.ActivityID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3600), all[0].StartTime)

	empty, err := f.svc.GetEmpty(ctx, f.activity.ActivityID)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Nil(t, empty[0].ObserveeID)

	registered, err := f.svc.GetRegisteredSlot(ctx, f.activity.ActivityID, "student-1")
	require.NoError(t, err)
	require.NotNil(t, registered)
	assert.Equal(t, int64(7200), registered.StartTime)

	none, err := f.svc.GetRegisteredSlot(ctx, f.activity.ActivityID, "student-2")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = f.svc.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrTimeslotNotFound)
}

func TestTimeslotService_GetForCalendar(t *testing.T) {
	repo, store := newMockRepository()
	activity := seedActivity(store, false)
	loc := time.FixedZone("UTC+10", 10*3600)
	svc := NewTimeslotService(repo, nil, nil, nil, loc, zap.NewNop())

	// 2024-03-01 00:00 UTC+10 = 2024-02-29 14:00 UTC
	marchStart := time.Date(2024, 3, 1, 0, 0, 0, 0, loc).Unix()
	seedSlot(store, activity.ActivityID, marchStart-1, "")
	seedSlot(store, activity.ActivityID, marchStart, "")
	seedSlot(store, activity.ActivityID, time.Date(2024, 3, 31, 23, 0, 0, 0, loc).Unix(), "")
	seedSlot(store, activity.ActivityID, time.Date(2024, 4, 1, 0, 0, 0, 0, loc).Unix(), "")

	slots, err := svc.GetForCalendar(context.Background(), activity.ActivityID, 3, 2024)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, marchStart, slots[0].StartTime)

	_, err = svc.GetForCalendar(context.Background(), activity.ActivityID, 13, 2024)
	assert.ErrorIs(t, err, ErrValidation)
}
