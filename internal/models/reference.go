package models

import "time"

// ClassSubject binds a subject to a class and, optionally, the teacher delivering it.
type ClassSubject struct {
	ID        string  `db:"id" json:"id"`
	ClassID   string  `db:"class_id" json:"class_id"`
	SubjectID string  `db:"subject_id" json:"subject_id"`
	TeacherID *string `db:"teacher_id" json:"teacher_id,omitempty"`
}

// AcademicYear bounds the dates a template may be effective for.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	BranchID  string    `db:"branch_id" json:"branch_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// Contains reports whether date falls within the year, inclusive.
func (y AcademicYear) Contains(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(y.StartDate)) && !d.After(DateOf(y.EndDate))
}
