package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarPolicyAllows(t *testing.T) {
	policy := CalendarPolicy{
		WorkingDays: []int{0, 1, 2, 3, 4},
		Holidays:    []time.Time{time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)},
	}

	monday := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	assert.True(t, policy.IsWorkingDay(monday))
	assert.True(t, policy.IsHoliday(monday.Add(10*time.Hour)))
	assert.False(t, policy.Allows(monday))

	tuesday := monday.AddDate(0, 0, 1)
	assert.True(t, policy.Allows(tuesday))

	saturday := monday.AddDate(0, 0, 5)
	assert.False(t, policy.IsWorkingDay(saturday))
	assert.False(t, policy.Allows(saturday))
}

func TestCalendarPolicyValidate(t *testing.T) {
	assert.Error(t, CalendarPolicy{}.Validate())
	assert.Error(t, CalendarPolicy{WorkingDays: []int{7}}.Validate())
	assert.NoError(t, CalendarPolicy{WorkingDays: []int{0, 6}}.Validate())
}

func TestCalendarPolicyMergeHolidays(t *testing.T) {
	first := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	policy := CalendarPolicy{WorkingDays: []int{0}, Holidays: []time.Time{first}}

	added := policy.MergeHolidays([]time.Time{first, first.AddDate(0, 0, 1), first.AddDate(0, 0, 1)})
	assert.Equal(t, 1, added)
	assert.Len(t, policy.Holidays, 2)
}

func TestLessonStatusTransitions(t *testing.T) {
	assert.True(t, LessonStatusScheduled.CanTransition(LessonStatusHeld))
	assert.True(t, LessonStatusScheduled.CanTransition(LessonStatusCancelled))
	assert.True(t, LessonStatusHeld.CanTransition(LessonStatusCancelled))
	assert.False(t, LessonStatusHeld.CanTransition(LessonStatusScheduled))
	assert.False(t, LessonStatusCancelled.CanTransition(LessonStatusScheduled))
	assert.False(t, LessonStatusCancelled.CanTransition(LessonStatusHeld))
	assert.False(t, LessonStatusScheduled.CanTransition(LessonStatusScheduled))
	assert.False(t, LessonStatus("done").Valid())
}
