package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"observation/backend/internal/model"
	"observation/backend/pkg/gradebook"
	"observation/backend/pkg/notify"
)

// ── 外部协作 fake ──

type sentNotice struct {
	Kind   notify.Kind
	UserID string
	Slot   notify.Slot
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (f *fakeNotifier) record(kind notify.Kind, to notify.Recipient, slot notify.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotice{Kind: kind, UserID: to.UserID, Slot: slot})
	return nil
}

func (f *fakeNotifier) SendReminder(_ context.Context, to notify.Recipient, slot notify.Slot) error {
	return f.record(notify.KindReminder, to, slot)
}

func (f *fakeNotifier) SendSignupConfirmation(_ context.Context, to notify.Recipient, slot notify.Slot) error {
	return f.record(notify.KindSignup, to, slot)
}

func (f *fakeNotifier) SendCancellation(_ context.Context, to notify.Recipient, slot notify.Slot) error {
	return f.record(notify.KindCancellation, to, slot)
}

func (f *fakeNotifier) byKind(kind notify.Kind) []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []sentNotice
	for _, n := range f.sent {
		if n.Kind == kind {
			result = append(result, n)
		}
	}
	return result
}

// fakeCalendar 记录事件；failCreate 非空时 CreateEvent 返回该错误
type fakeCalendar struct {
	seq        int
	events     map[string]CalendarEvent
	failCreate error
	failDelete error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]CalendarEvent)}
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev CalendarEvent) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.seq++
	ref := fmt.Sprintf("ev-%d", f.seq)
	f.events[ref] = ev
	return ref, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, ref string, ev CalendarEvent) error {
	if _, ok := f.events[ref]; !ok {
		return errors.New("事件不存在")
	}
	f.events[ref] = ev
	return nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, ref string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.events, ref)
	return nil
}

type fakeSink struct {
	grades []gradebook.Grade
	err    error
}

func (f *fakeSink) SyncGrade(_ context.Context, g gradebook.Grade) error {
	if f.err != nil {
		return f.err
	}
	f.grades = append(f.grades, g)
	return nil
}

// ── 测试数据 ──

func seedActivity(store *memStore, selfUnregister bool) *model.Activity {
	a := &model.Activity{
		ActivityID:             store.nextID("act"),
		CourseID:               "course-1",
		Name:                   "课堂观察",
		StudentsSelfUnregister: selfUnregister,
		GradebookRef:           "grade-item-1",
	}
	store.activities[a.ActivityID] = a
	return a
}

func seedSlot(store *memStore, activityID string, start int64, observee string) *model.Timeslot {
	s := &model.Timeslot{
		TimeslotID:      store.nextID("slot"),
		ActivityID:      activityID,
		StartTime:       start,
		DurationMinutes: 30,
		ObserverID:      "teacher-1",
	}
	if observee != "" {
		s.ObserveeID = &observee
	}
	store.slots[s.TimeslotID] = s
	return s
}

func seedParticipant(store *memStore, activityID, userID string, canObserve bool) {
	store.participants[activityID+"/"+userID] = &model.Participant{
		ActivityID: activityID,
		UserID:     userID,
		Name:       userID,
		Email:      userID + "@example.com",
		CanObserve: canObserve,
	}
}

func seedPoint(store *memStore, activityID string, order, maxGrade int, responseType string) *model.RubricPoint {
	p := &model.RubricPoint{
		PointID:      store.nextID("point"),
		ActivityID:   activityID,
		Title:        fmt.Sprintf("评分点%d", order),
		MaxGrade:     maxGrade,
		ResponseType: responseType,
		ListOrder:    order,
	}
	store.points[p.PointID] = p
	return p
}

// fixedClock 可手动推进的时钟
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func ptr(s string) *string { return &s }
