package model

// All 返回全部持久化模型，供 SQLite 自动建表使用
func All() []interface{} {
	return []interface{}{
		&Activity{},
		&Participant{},
		&RubricPoint{},
		&Timeslot{},
		&TimeslotNotification{},
		&Session{},
		&PointResponse{},
		&CalendarEvent{},
	}
}
