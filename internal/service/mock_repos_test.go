package service

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"observation/backend/internal/model"
	"observation/backend/internal/ordering"
	"observation/backend/internal/repository"
)

// ── 内存存储 ──
// 所有 mock Repository 共享同一份数据，读写均复制结构体，行为接近真实数据库

type memStore struct {
	seq int

	activities    map[string]*model.Activity
	participants  map[string]*model.Participant // key: activityID/userID
	points        map[string]*model.RubricPoint
	slots         map[string]*model.Timeslot
	notifications map[string]*model.TimeslotNotification
	sessions      map[string]*model.Session
	responses     map[string]*model.PointResponse // key: sessionID/pointID
	events        map[string]*model.CalendarEvent

	// assignHook 非空时在 AssignObservee 前调用，返回 handled=true 时直接使用其结果
	assignHook func(slotID, userID string) (handled, ok bool, err error)

	// activityLocks 按顺序记录 LockByID 的活动
	activityLocks []string

	// sessionReadHook 非空时在下一次读取会话后调用一次，用于模拟读取与写入之间的并发修改
	sessionReadHook func(sessionID string)
}

func newMemStore() *memStore {
	return &memStore{
		activities:    make(map[string]*model.Activity),
		participants:  make(map[string]*model.Participant),
		points:        make(map[string]*model.RubricPoint),
		slots:         make(map[string]*model.Timeslot),
		notifications: make(map[string]*model.TimeslotNotification),
		sessions:      make(map[string]*model.Session),
		responses:     make(map[string]*model.PointResponse),
		events:        make(map[string]*model.CalendarEvent),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// newMockRepository 组装未绑定数据库的 Repository，Transaction 直接执行回调
func newMockRepository() (*repository.Repository, *memStore) {
	store := newMemStore()
	return &repository.Repository{
		Activity:      &mockActivityRepo{store},
		Participant:   &mockParticipantRepo{store},
		RubricPoint:   &mockRubricPointRepo{store},
		Timeslot:      &mockTimeslotRepo{store},
		Notification:  &mockNotificationRepo{store},
		Session:       &mockSessionRepo{store},
		PointResponse: &mockPointResponseRepo{store},
		CalendarEvent: &mockCalendarEventRepo{store},
	}, store
}

// ── Mock ActivityRepository ──

type mockActivityRepo struct{ *memStore }

func (m *mockActivityRepo) Create(_ context.Context, a *model.Activity) error {
	if a.ActivityID == "" {
		a.ActivityID = m.nextID("act")
	}
	cp := *a
	m.activities[a.ActivityID] = &cp
	return nil
}

func (m *mockActivityRepo) GetByID(_ context.Context, id string) (*model.Activity, error) {
	if a, ok := m.activities[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockActivityRepo) LockByID(ctx context.Context, id string) (*model.Activity, error) {
	m.activityLocks = append(m.activityLocks, id)
	return m.GetByID(ctx, id)
}

func (m *mockActivityRepo) Update(_ context.Context, a *model.Activity) error {
	cp := *a
	m.activities[a.ActivityID] = &cp
	return nil
}

// ── Mock ParticipantRepository ──

type mockParticipantRepo struct{ *memStore }

func (m *mockParticipantRepo) Upsert(_ context.Context, p *model.Participant) error {
	cp := *p
	m.participants[p.ActivityID+"/"+p.UserID] = &cp
	return nil
}

func (m *mockParticipantRepo) Get(_ context.Context, activityID, userID string) (*model.Participant, error) {
	if p, ok := m.participants[activityID+"/"+userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockParticipantRepo) List(_ context.Context, activityID string) ([]model.Participant, error) {
	var result []model.Participant
	for _, p := range m.participants {
		if p.ActivityID == activityID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (m *mockParticipantRepo) ListObservers(ctx context.Context, activityID string) ([]model.Participant, error) {
	all, _ := m.List(ctx, activityID)
	var result []model.Participant
	for _, p := range all {
		if p.CanObserve {
			result = append(result, p)
		}
	}
	return result, nil
}

// ── Mock RubricPointRepository ──

type mockRubricPointRepo struct{ *memStore }

func (m *mockRubricPointRepo) Create(_ context.Context, p *model.RubricPoint) error {
	if p.PointID == "" {
		p.PointID = m.nextID("point")
	}
	cp := *p
	m.points[p.PointID] = &cp
	return nil
}

func (m *mockRubricPointRepo) GetByID(_ context.Context, id string) (*model.RubricPoint, error) {
	if p, ok := m.points[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRubricPointRepo) Update(_ context.Context, p *model.RubricPoint) error {
	existing, ok := m.points[p.PointID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	cp.ListOrder = existing.ListOrder
	m.points[p.PointID] = &cp
	return nil
}

func (m *mockRubricPointRepo) Delete(_ context.Context, id string) error {
	delete(m.points, id)
	return nil
}

func (m *mockRubricPointRepo) ListByActivity(_ context.Context, activityID string) ([]model.RubricPoint, error) {
	var result []model.RubricPoint
	for _, p := range m.points {
		if p.ActivityID == activityID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ListOrder < result[j].ListOrder })
	return result, nil
}

func (m *mockRubricPointRepo) ListForUpdate(ctx context.Context, activityID string) ([]model.RubricPoint, error) {
	return m.ListByActivity(ctx, activityID)
}

func (m *mockRubricPointRepo) ApplyOrder(_ context.Context, changes []ordering.Change) error {
	for _, c := range changes {
		if p, ok := m.points[c.ID]; ok {
			p.ListOrder = c.NewOrder
		}
	}
	return nil
}

// ── Mock TimeslotRepository ──

type mockTimeslotRepo struct{ *memStore }

func (m *mockTimeslotRepo) observeeTaken(activityID, slotID string, observee *string) bool {
	if observee == nil {
		return false
	}
	for _, s := range m.slots {
		if s.TimeslotID != slotID && s.ActivityID == activityID && s.ObserveeID != nil && *s.ObserveeID == *observee {
			return true
		}
	}
	return false
}

func (m *mockTimeslotRepo) Create(_ context.Context, slot *model.Timeslot) error {
	if slot.TimeslotID == "" {
		slot.TimeslotID = m.nextID("slot")
	}
	if m.observeeTaken(slot.ActivityID, slot.TimeslotID, slot.ObserveeID) {
		return gorm.ErrDuplicatedKey
	}
	cp := *slot
	m.slots[slot.TimeslotID] = &cp
	return nil
}

func (m *mockTimeslotRepo) CreateBatch(ctx context.Context, slots []model.Timeslot) error {
	for i := range slots {
		if err := m.Create(ctx, &slots[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockTimeslotRepo) GetByID(_ context.Context, id string) (*model.Timeslot, error) {
	if s, ok := m.slots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeslotRepo) Update(_ context.Context, slot *model.Timeslot) error {
	if m.observeeTaken(slot.ActivityID, slot.TimeslotID, slot.ObserveeID) {
		return gorm.ErrDuplicatedKey
	}
	cp := *slot
	m.slots[slot.TimeslotID] = &cp
	return nil
}

func (m *mockTimeslotRepo) Delete(_ context.Context, id string) error {
	for nid, n := range m.notifications {
		if n.TimeslotID == id {
			delete(m.notifications, nid)
		}
	}
	delete(m.slots, id)
	return nil
}

func (m *mockTimeslotRepo) list(activityID string, keep func(*model.Timeslot) bool) []model.Timeslot {
	var result []model.Timeslot
	for _, s := range m.slots {
		if s.ActivityID == activityID && keep(s) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].TimeslotID < result[j].TimeslotID
	})
	return result
}

func (m *mockTimeslotRepo) ListByActivity(_ context.Context, activityID string) ([]model.Timeslot, error) {
	return m.list(activityID, func(*model.Timeslot) bool { return true }), nil
}

func (m *mockTimeslotRepo) ListEmpty(_ context.Context, activityID string) ([]model.Timeslot, error) {
	return m.list(activityID, func(s *model.Timeslot) bool { return s.ObserveeID == nil }), nil
}

func (m *mockTimeslotRepo) ListInRange(_ context.Context, activityID string, from, to int64) ([]model.Timeslot, error) {
	return m.list(activityID, func(s *model.Timeslot) bool {
		return s.StartTime >= from && s.StartTime < to
	}), nil
}

func (m *mockTimeslotRepo) GetByObservee(_ context.Context, activityID, userID string) (*model.Timeslot, error) {
	for _, s := range m.list(activityID, func(s *model.Timeslot) bool {
		return s.ObserveeID != nil && *s.ObserveeID == userID
	}) {
		cp := s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeslotRepo) ListObservees(_ context.Context, activityID string) ([]string, error) {
	var ids []string
	for _, s := range m.list(activityID, func(s *model.Timeslot) bool { return s.ObserveeID != nil }) {
		ids = append(ids, *s.ObserveeID)
	}
	return ids, nil
}

func (m *mockTimeslotRepo) AssignObservee(_ context.Context, slotID, userID string) (bool, error) {
	if m.assignHook != nil {
		if handled, ok, err := m.assignHook(slotID, userID); handled {
			return ok, err
		}
	}

	s, ok := m.slots[slotID]
	if !ok || s.ObserveeID != nil {
		return false, nil
	}
	if m.observeeTaken(s.ActivityID, slotID, &userID) {
		return false, gorm.ErrDuplicatedKey
	}
	uid := userID
	s.ObserveeID = &uid
	return true, nil
}

func (m *mockTimeslotRepo) ClearObservee(_ context.Context, slotID string) error {
	if s, ok := m.slots[slotID]; ok {
		s.ObserveeID = nil
		s.ObserveeEventRef = nil
	}
	return nil
}

func (m *mockTimeslotRepo) UpdateEventRefs(_ context.Context, slotID string, observerRef, observeeRef *string) error {
	s, ok := m.slots[slotID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.ObserverEventRef = observerRef
	s.ObserveeEventRef = observeeRef
	return nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct{ *memStore }

func (m *mockNotificationRepo) withSlot(n *model.TimeslotNotification) model.TimeslotNotification {
	cp := *n
	if s, ok := m.slots[n.TimeslotID]; ok {
		slot := *s
		cp.Timeslot = &slot
	}
	return cp
}

func (m *mockNotificationRepo) userSlots(activityID, userID string) map[string]bool {
	ids := make(map[string]bool)
	for _, s := range m.slots {
		if s.ActivityID == activityID && s.ObserveeID != nil && *s.ObserveeID == userID {
			ids[s.TimeslotID] = true
		}
	}
	return ids
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.TimeslotNotification) error {
	if n.NotificationID == "" {
		n.NotificationID = m.nextID("notif")
	}
	cp := *n
	cp.Timeslot = nil
	m.notifications[n.NotificationID] = &cp
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.TimeslotNotification, error) {
	if n, ok := m.notifications[id]; ok {
		cp := m.withSlot(n)
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) Delete(_ context.Context, id string) error {
	delete(m.notifications, id)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, activityID, userID string) ([]model.TimeslotNotification, error) {
	slots := m.userSlots(activityID, userID)
	var result []model.TimeslotNotification
	for _, n := range m.notifications {
		if slots[n.TimeslotID] {
			result = append(result, m.withSlot(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OffsetSeconds > result[j].OffsetSeconds })
	return result, nil
}

func (m *mockNotificationRepo) CountByUser(ctx context.Context, activityID, userID string) (int64, error) {
	list, _ := m.ListByUser(ctx, activityID, userID)
	return int64(len(list)), nil
}

func (m *mockNotificationRepo) DeleteByUser(_ context.Context, activityID, userID string) error {
	slots := m.userSlots(activityID, userID)
	for id, n := range m.notifications {
		if slots[n.TimeslotID] {
			delete(m.notifications, id)
		}
	}
	return nil
}

func (m *mockNotificationRepo) ListDue(_ context.Context, now int64) ([]model.TimeslotNotification, error) {
	var result []model.TimeslotNotification
	for _, n := range m.notifications {
		s, ok := m.slots[n.TimeslotID]
		if ok && s.StartTime-n.OffsetSeconds < now {
			result = append(result, m.withSlot(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NotificationID < result[j].NotificationID })
	return result, nil
}

// ── Mock SessionRepository ──

type mockSessionRepo struct{ *memStore }

func (m *mockSessionRepo) Create(_ context.Context, s *model.Session) error {
	if s.SessionID == "" {
		s.SessionID = m.nextID("session")
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	if hook := m.sessionReadHook; hook != nil {
		m.sessionReadHook = nil
		hook(id)
	}
	return &cp, nil
}

func (m *mockSessionRepo) Transition(_ context.Context, id string, from []string, to string, finishTime int64) (bool, error) {
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	for _, state := range from {
		if s.State == state {
			s.State = to
			s.FinishTime = &finishTime
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepo) UpdateExtraComment(_ context.Context, id, text string) (bool, error) {
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	s.ExtraComment = text
	return true, nil
}

func (m *mockSessionRepo) LatestInProgress(_ context.Context, activityID, observerID, observeeID string) (*model.Session, error) {
	var latest *model.Session
	for _, s := range m.sessions {
		if s.ActivityID != activityID || s.ObserverID != observerID || s.ObserveeID != observeeID ||
			s.State != model.SessionStateInProgress {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockSessionRepo) ListByActivity(_ context.Context, activityID string) ([]model.Session, error) {
	var result []model.Session
	for _, s := range m.sessions {
		if s.ActivityID == activityID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime < result[j].StartTime })
	return result, nil
}

// ── Mock PointResponseRepository ──

type mockPointResponseRepo struct{ *memStore }

func (m *mockPointResponseRepo) Upsert(_ context.Context, r *model.PointResponse) error {
	key := r.SessionID + "/" + r.PointID
	if existing, ok := m.responses[key]; ok {
		existing.GradeGiven = r.GradeGiven
		existing.ResponseValue = r.ResponseValue
		existing.ExtraComment = r.ExtraComment
		existing.TimeModified = r.TimeModified
		return nil
	}
	if r.ResponseID == "" {
		r.ResponseID = m.nextID("resp")
	}
	cp := *r
	m.responses[key] = &cp
	return nil
}

func (m *mockPointResponseRepo) Get(_ context.Context, sessionID, pointID string) (*model.PointResponse, error) {
	if r, ok := m.responses[sessionID+"/"+pointID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPointResponseRepo) ListBySession(_ context.Context, sessionID string) ([]model.PointResponse, error) {
	var result []model.PointResponse
	for _, r := range m.responses {
		if r.SessionID == sessionID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ResponseID < result[j].ResponseID })
	return result, nil
}

// ── Mock CalendarEventRepository ──

type mockCalendarEventRepo struct{ *memStore }

func (m *mockCalendarEventRepo) Create(_ context.Context, e *model.CalendarEvent) error {
	cp := *e
	m.events[e.EventRef] = &cp
	return nil
}

func (m *mockCalendarEventRepo) GetByRef(_ context.Context, ref string) (*model.CalendarEvent, error) {
	if e, ok := m.events[ref]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCalendarEventRepo) Update(_ context.Context, e *model.CalendarEvent) error {
	cp := *e
	m.events[e.EventRef] = &cp
	return nil
}

func (m *mockCalendarEventRepo) Delete(_ context.Context, ref string) error {
	delete(m.events, ref)
	return nil
}

func (m *mockCalendarEventRepo) ListByUser(_ context.Context, userID string) ([]model.CalendarEvent, error) {
	var result []model.CalendarEvent
	for _, e := range m.events {
		if e.UserID == userID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartAt < result[j].StartAt })
	return result, nil
}
