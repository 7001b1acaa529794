package service

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ScheduleConflictDetector finds teacher and room double-bookings. It performs no I/O.
type ScheduleConflictDetector struct{}

// NewScheduleConflictDetector constructs a detector.
func NewScheduleConflictDetector() *ScheduleConflictDetector {
	return &ScheduleConflictDetector{}
}

// CheckSlotConflicts compares candidate against the existing slots of its template and returns every clash.
// Slots of other templates or weekdays, the candidate itself, and touching ranges are ignored.
func (d *ScheduleConflictDetector) CheckSlotConflicts(candidate models.SlotPlacement, existing []models.SlotPlacement) []models.SlotConflict {
	var conflicts []models.SlotConflict
	c := candidate.Slot
	for _, other := range existing {
		o := other.Slot
		if o.TemplateID != c.TemplateID || o.DayOfWeek != c.DayOfWeek {
			continue
		}
		if c.ID != "" && o.ID == c.ID {
			continue
		}
		if !models.Overlaps(c.StartTime, c.EndTime, o.StartTime, o.EndTime) {
			continue
		}
		if o.ClassID == c.ClassID {
			continue
		}
		if sameTeacher(candidate.TeacherID, other.TeacherID) {
			conflicts = append(conflicts, models.SlotConflict{
				Type:      models.ConflictTeacher,
				SlotID:    o.ID,
				ClassID:   o.ClassID,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
				Message:   fmt.Sprintf("teacher double-booked with slot %s", o.ID),
			})
		}
		if sameRoom(c.RoomID, o.RoomID) {
			conflicts = append(conflicts, models.SlotConflict{
				Type:      models.ConflictRoom,
				SlotID:    o.ID,
				ClassID:   o.ClassID,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
				Message:   fmt.Sprintf("room double-booked with slot %s", o.ID),
			})
		}
	}
	return conflicts
}

// CheckLessonConflicts applies the slot rules to dated lessons: same date, not cancelled.
func (d *ScheduleConflictDetector) CheckLessonConflicts(candidate models.LessonPlacement, existing []models.LessonPlacement) []models.SlotConflict {
	var conflicts []models.SlotConflict
	c := candidate.Lesson
	for _, other := range existing {
		o := other.Lesson
		if !models.DateOf(o.Date).Equal(models.DateOf(c.Date)) || o.Status == models.LessonStatusCancelled {
			continue
		}
		if c.ID != "" && o.ID == c.ID {
			continue
		}
		if !models.Overlaps(c.StartTime, c.EndTime, o.StartTime, o.EndTime) {
			continue
		}
		if o.ClassID == c.ClassID {
			continue
		}
		if sameTeacher(candidate.TeacherID, other.TeacherID) {
			conflicts = append(conflicts, models.SlotConflict{
				Type:      models.ConflictTeacher,
				LessonID:  o.ID,
				ClassID:   o.ClassID,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
				Message:   fmt.Sprintf("teacher double-booked with lesson %s on %s", o.ID, o.Date.Format(models.DateLayout)),
			})
		}
		if sameRoom(c.RoomID, o.RoomID) {
			conflicts = append(conflicts, models.SlotConflict{
				Type:      models.ConflictRoom,
				LessonID:  o.ID,
				ClassID:   o.ClassID,
				StartTime: o.StartTime,
				EndTime:   o.EndTime,
				Message:   fmt.Sprintf("room double-booked with lesson %s on %s", o.ID, o.Date.Format(models.DateLayout)),
			})
		}
	}
	return conflicts
}

func sameTeacher(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}

func sameRoom(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}
