package models

import (
	"errors"
	"fmt"
	"time"
)

// CalendarPolicy describes which dates a branch teaches on.
type CalendarPolicy struct {
	BranchID    string      `json:"branch_id"`
	WorkingDays []int       `json:"working_days"`
	Holidays    []time.Time `json:"holidays"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks the working day set is non-empty and within 0..6.
func (p CalendarPolicy) Validate() error {
	if len(p.WorkingDays) == 0 {
		return errors.New("working days must not be empty")
	}
	for _, d := range p.WorkingDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("working day %d out of range", d)
		}
	}
	return nil
}

// IsWorkingDay reports whether the weekday of date is a teaching day.
func (p CalendarPolicy) IsWorkingDay(date time.Time) bool {
	idx := WeekdayIndex(date)
	for _, d := range p.WorkingDays {
		if d == idx {
			return true
		}
	}
	return false
}

// IsHoliday reports whether date is listed as a holiday.
func (p CalendarPolicy) IsHoliday(date time.Time) bool {
	day := DateOf(date)
	for _, h := range p.Holidays {
		if DateOf(h).Equal(day) {
			return true
		}
	}
	return false
}

// Allows reports whether lessons may take place on date.
func (p CalendarPolicy) Allows(date time.Time) bool {
	return p.IsWorkingDay(date) && !p.IsHoliday(date)
}

// MergeHolidays adds dates not already present and returns how many were new.
func (p *CalendarPolicy) MergeHolidays(dates []time.Time) int {
	added := 0
	for _, d := range dates {
		if p.IsHoliday(d) {
			continue
		}
		p.Holidays = append(p.Holidays, DateOf(d))
		added++
	}
	return added
}
