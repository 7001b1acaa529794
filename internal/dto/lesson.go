package dto

// GenerateLessonsRequest asks for lesson instances over a date range, a week, a calendar month or a quarter.
// Exactly one of startDate/endDate, weekStart, year/month or year/quarter is expected.
type GenerateLessonsRequest struct {
	StartDate    string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	WeekStart    string `json:"weekStart" validate:"omitempty,datetime=2006-01-02"`
	Year         int    `json:"year" validate:"omitempty,min=2000,max=2100"`
	Month        int    `json:"month" validate:"omitempty,min=1,max=12"`
	Quarter      int    `json:"quarter" validate:"omitempty,min=1,max=4"`
	SkipExisting *bool  `json:"skipExisting"`
	Async        bool   `json:"async"`
}

// GenerationAcceptedResponse is returned when generation is queued.
type GenerationAcceptedResponse struct {
	JobID      string `json:"jobId"`
	TemplateID string `json:"templateId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

// LessonRangeQuery selects a class's lessons between two dates.
type LessonRangeQuery struct {
	ClassID string `form:"classId" validate:"required"`
	From    string `form:"from" validate:"required,datetime=2006-01-02"`
	To      string `form:"to" validate:"required,datetime=2006-01-02"`
}

// WeeklyScheduleQuery selects one class week.
type WeeklyScheduleQuery struct {
	ClassID   string `form:"classId" validate:"required"`
	WeekStart string `form:"weekStart" validate:"required,datetime=2006-01-02"`
}

// CreateLessonRequest creates an ad hoc lesson outside any template.
type CreateLessonRequest struct {
	ClassSubjectID string  `json:"classSubjectId" validate:"required"`
	Date           string  `json:"date" validate:"required,datetime=2006-01-02"`
	LessonNumber   int     `json:"lessonNumber" validate:"required,min=1,max=15"`
	StartTime      string  `json:"startTime" validate:"required"`
	EndTime        string  `json:"endTime" validate:"required"`
	RoomID         *string `json:"roomId" validate:"omitempty,max=64"`
}

// UpdateLessonStatusRequest moves a lesson through its lifecycle.
type UpdateLessonStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=held cancelled"`
}

// HolidayImportResponse summarises an iCalendar holiday import.
type HolidayImportResponse struct {
	BranchID string `json:"branchId"`
	Parsed   int    `json:"parsed"`
	Added    int    `json:"added"`
	Total    int    `json:"total"`
}
