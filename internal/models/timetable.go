package models

import (
	"strings"
	"time"
)

const (
	MinLessonNumber = 1
	MaxLessonNumber = 15
)

// TimetableTemplate is a weekly recurring timetable for one branch and academic year.
type TimetableTemplate struct {
	ID             string     `db:"id" json:"id"`
	BranchID       string     `db:"branch_id" json:"branch_id"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	Name           string     `db:"name" json:"name"`
	Description    *string    `db:"description" json:"description,omitempty"`
	EffectiveFrom  time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time `db:"effective_until" json:"effective_until,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	Version        int        `db:"version" json:"version"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one recurring lesson position inside a template.
type TimetableSlot struct {
	ID             string    `db:"id" json:"id"`
	TemplateID     string    `db:"template_id" json:"template_id"`
	ClassSubjectID string    `db:"class_subject_id" json:"class_subject_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	DayOfWeek      int       `db:"day_of_week" json:"day_of_week"`
	LessonNumber   int       `db:"lesson_number" json:"lesson_number"`
	StartTime      ClockTime `db:"start_time" json:"start_time"`
	EndTime        ClockTime `db:"end_time" json:"end_time"`
	RoomID         *string   `db:"room_id" json:"room_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SlotPlacement is a slot together with the teacher resolved from its class subject.
type SlotPlacement struct {
	Slot      TimetableSlot
	TeacherID *string
}

// ConflictType classifies a double-booking.
type ConflictType string

const (
	ConflictTeacher ConflictType = "TEACHER"
	ConflictRoom    ConflictType = "ROOM"
)

// SlotConflict describes one clash between a candidate and an existing slot or lesson.
type SlotConflict struct {
	Type      ConflictType `json:"type"`
	SlotID    string       `json:"slot_id,omitempty"`
	LessonID  string       `json:"lesson_id,omitempty"`
	ClassID   string       `json:"class_id"`
	StartTime ClockTime    `json:"start_time"`
	EndTime   ClockTime    `json:"end_time"`
	Message   string       `json:"message"`
}

// ScheduleConflictError carries every conflict found for a rejected write.
type ScheduleConflictError struct {
	Conflicts []SlotConflict `json:"conflicts"`
}

func (e *ScheduleConflictError) Error() string {
	messages := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		messages = append(messages, c.Message)
	}
	return "schedule conflict: " + strings.Join(messages, "; ")
}

// LessonPlacement is a dated lesson together with the teacher resolved from its class subject.
type LessonPlacement struct {
	Lesson    LessonInstance
	TeacherID *string
}
