package models

import "time"

// LessonStatus is the lifecycle state of a concrete lesson.
type LessonStatus string

const (
	LessonStatusScheduled LessonStatus = "scheduled"
	LessonStatusHeld      LessonStatus = "held"
	LessonStatusCancelled LessonStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusScheduled, LessonStatusHeld, LessonStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a lesson may move from s to next. Nothing returns to scheduled.
func (s LessonStatus) CanTransition(next LessonStatus) bool {
	switch s {
	case LessonStatusScheduled:
		return next == LessonStatusHeld || next == LessonStatusCancelled
	case LessonStatusHeld:
		return next == LessonStatusCancelled
	}
	return false
}

// LessonInstance is a dated lesson materialized from a slot or created by hand.
type LessonInstance struct {
	ID               string       `db:"id" json:"id"`
	ClassSubjectID   string       `db:"class_subject_id" json:"class_subject_id"`
	ClassID          string       `db:"class_id" json:"class_id"`
	Date             time.Time    `db:"date" json:"date"`
	LessonNumber     int          `db:"lesson_number" json:"lesson_number"`
	StartTime        ClockTime    `db:"start_time" json:"start_time"`
	EndTime          ClockTime    `db:"end_time" json:"end_time"`
	RoomID           *string      `db:"room_id" json:"room_id,omitempty"`
	IsAutoGenerated  bool         `db:"is_auto_generated" json:"is_auto_generated"`
	SourceTemplateID *string      `db:"source_template_id" json:"source_template_id,omitempty"`
	SourceSlotID     *string      `db:"source_slot_id" json:"source_slot_id,omitempty"`
	Status           LessonStatus `db:"status" json:"status"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonCollision records a date where an existing lesson occupies a slot's position with another class subject.
type LessonCollision struct {
	Date                   time.Time `json:"date"`
	ClassID                string    `json:"class_id"`
	LessonNumber           int       `json:"lesson_number"`
	SlotID                 string    `json:"slot_id"`
	SlotClassSubjectID     string    `json:"slot_class_subject_id"`
	ExistingLessonID       string    `json:"existing_lesson_id"`
	ExistingClassSubjectID string    `json:"existing_class_subject_id"`
}

// GenerationResult summarises one generation run.
type GenerationResult struct {
	TemplateID string            `json:"template_id"`
	StartDate  time.Time         `json:"start_date"`
	EndDate    time.Time         `json:"end_date"`
	Created    []LessonInstance  `json:"created"`
	Skipped    int               `json:"skipped"`
	Collisions []LessonCollision `json:"collisions"`
}

// WeeklySchedule groups a class's lessons by weekday for one week.
type WeeklySchedule struct {
	ClassID   string                   `json:"class_id"`
	WeekStart time.Time                `json:"week_start"`
	Days      map[int][]LessonInstance `json:"days"`
}

// LessonFilter narrows lesson listings.
type LessonFilter struct {
	ClassID string
	From    time.Time
	To      time.Time
}
