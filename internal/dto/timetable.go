package dto

// CreateTimetableTemplateRequest creates an inactive weekly template.
type CreateTimetableTemplateRequest struct {
	BranchID       string  `json:"branchId" validate:"required"`
	AcademicYearID string  `json:"academicYearId" validate:"required"`
	Name           string  `json:"name" validate:"required,max=120"`
	Description    *string `json:"description" validate:"omitempty,max=1000"`
	EffectiveFrom  string  `json:"effectiveFrom" validate:"required,datetime=2006-01-02"`
	EffectiveUntil *string `json:"effectiveUntil" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateTimetableTemplateRequest replaces descriptive fields and the effective window.
type UpdateTimetableTemplateRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	Description    *string `json:"description" validate:"omitempty,max=1000"`
	EffectiveFrom  string  `json:"effectiveFrom" validate:"required,datetime=2006-01-02"`
	EffectiveUntil *string `json:"effectiveUntil" validate:"omitempty,datetime=2006-01-02"`
}

// TimetableTemplateQuery filters template listings.
type TimetableTemplateQuery struct {
	BranchID       string `form:"branchId" validate:"required"`
	AcademicYearID string `form:"academicYearId" validate:"required"`
}

// TimetableSlotRequest places a class subject on a weekday and lesson number.
type TimetableSlotRequest struct {
	ClassSubjectID string  `json:"classSubjectId" validate:"required"`
	DayOfWeek      *int    `json:"dayOfWeek" validate:"required,min=0,max=6"`
	LessonNumber   int     `json:"lessonNumber" validate:"required,min=1,max=15"`
	StartTime      string  `json:"startTime" validate:"required"`
	EndTime        string  `json:"endTime" validate:"required"`
	RoomID         *string `json:"roomId" validate:"omitempty,max=64"`
}

// BulkTimetableSlotRequest imports several slots at once.
type BulkTimetableSlotRequest struct {
	Slots []TimetableSlotRequest `json:"slots" validate:"required,min=1,max=500,dive"`
}

// SlotCheckResponse is the dry-run outcome for a candidate slot.
type SlotCheckResponse struct {
	OK        bool        `json:"ok"`
	Conflicts interface{} `json:"conflicts"`
}

// BulkSlotProblem reports why one candidate of a bulk import was rejected.
type BulkSlotProblem struct {
	Index     int         `json:"index"`
	Message   string      `json:"message"`
	Conflicts interface{} `json:"conflicts,omitempty"`
}
