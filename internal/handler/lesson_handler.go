package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type lessonGenerator interface {
	GenerateForWeek(ctx context.Context, templateID string, weekStart time.Time) (*models.GenerationResult, error)
	GenerateForMonth(ctx context.Context, templateID string, year int, month time.Month) (*models.GenerationResult, error)
	GenerateForQuarter(ctx context.Context, templateID string, year, quarter int) (*models.GenerationResult, error)
	GenerateForPeriod(ctx context.Context, templateID string, start, end time.Time, skipExisting bool) (*models.GenerationResult, error)
	ValidateTemplate(ctx context.Context, templateID string) error
}

type generationEnqueuer interface {
	Enqueue(req service.GenerationRequest) (string, error)
}

type lessonService interface {
	Get(ctx context.Context, id string) (*models.LessonInstance, error)
	FindBySlot(ctx context.Context, classSubjectID string, date time.Time, lessonNumber int) (*models.LessonInstance, error)
	ListForClass(ctx context.Context, query dto.LessonRangeQuery) ([]models.LessonInstance, bool, error)
	WeeklySchedule(ctx context.Context, query dto.WeeklyScheduleQuery) (*models.WeeklySchedule, error)
	CreateManual(ctx context.Context, req dto.CreateLessonRequest) (*models.LessonInstance, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateLessonStatusRequest) (*models.LessonInstance, error)
	ExportClassCalendar(ctx context.Context, w io.Writer, query dto.LessonRangeQuery) error
}

// LessonHandler exposes lesson generation and dated lesson endpoints.
type LessonHandler struct {
	lessons   lessonService
	generator lessonGenerator
	jobs      generationEnqueuer
	logger    *zap.Logger
}

// NewLessonHandler constructs the handler. jobs may be nil, which disables async generation.
func NewLessonHandler(lessons *service.LessonService, generator *service.LessonGeneratorService, jobs *service.LessonGenerationJob, logger *zap.Logger) *LessonHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LessonHandler{lessons: lessons, generator: generator, logger: logger}
	if jobs != nil {
		h.jobs = jobs
	}
	return h
}

// Generate godoc
// @Summary Generate lessons from an active template
// @Description Provide startDate/endDate, weekStart or year/month. With async=true the run is queued and 202 is returned.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.GenerateLessonsRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable-templates/{id}/generate [post]
func (h *LessonHandler) Generate(c *gin.Context) {
	var req dto.GenerateLessonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	templateID := c.Param("id")
	skipExisting := req.SkipExisting == nil || *req.SkipExisting

	start, end, err := generationRange(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.Async {
		if h.jobs == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "async generation is not enabled"))
			return
		}
		if err := h.generator.ValidateTemplate(c.Request.Context(), templateID); err != nil {
			response.Error(c, err)
			return
		}
		jobID, err := h.jobs.Enqueue(service.GenerationRequest{TemplateID: templateID, StartDate: start, EndDate: end, SkipExisting: skipExisting})
		if err != nil {
			response.Error(c, err)
			return
		}
		h.logger.Info("lesson generation queued", append(actorFields(c), zap.String("job_id", jobID), zap.String("template_id", templateID))...)
		response.Accepted(c, dto.GenerationAcceptedResponse{
			JobID:      jobID,
			TemplateID: templateID,
			StartDate:  start.Format(models.DateLayout),
			EndDate:    end.Format(models.DateLayout),
		})
		return
	}

	var result *models.GenerationResult
	switch {
	case req.WeekStart != "" && skipExisting:
		result, err = h.generator.GenerateForWeek(c.Request.Context(), templateID, start)
	case req.Month != 0 && skipExisting:
		result, err = h.generator.GenerateForMonth(c.Request.Context(), templateID, req.Year, time.Month(req.Month))
	case req.Quarter != 0 && skipExisting:
		result, err = h.generator.GenerateForQuarter(c.Request.Context(), templateID, req.Year, req.Quarter)
	default:
		result, err = h.generator.GenerateForPeriod(c.Request.Context(), templateID, start, end, skipExisting)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List lessons of a class between two dates
// @Tags Lessons
// @Produce json
// @Param classId query string true "Class ID"
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	var query dto.LessonRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	lessons, hit, err := h.lessons.ListForClass(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetMeta(c, "count", len(lessons))
	response.JSON(c, http.StatusOK, lessons, nil, middleware.ExtractMeta(c))
}

// Weekly godoc
// @Summary Weekly view of a class
// @Description Lessons of the Monday..Sunday week containing weekStart, keyed by weekday (0 = Monday).
// @Tags Lessons
// @Produce json
// @Param classId query string true "Class ID"
// @Param weekStart query string true "Any date in the week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /lessons/weekly [get]
func (h *LessonHandler) Weekly(c *gin.Context) {
	var query dto.WeeklyScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	schedule, err := h.lessons.WeeklySchedule(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Calendar godoc
// @Summary Export class lessons as iCalendar
// @Tags Lessons
// @Produce text/calendar
// @Param classId query string true "Class ID"
// @Param from query string true "First date (YYYY-MM-DD)"
// @Param to query string true "Last date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /lessons/calendar.ics [get]
func (h *LessonHandler) Calendar(c *gin.Context) {
	var query dto.LessonRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	var buf bytes.Buffer
	if err := h.lessons.ExportClassCalendar(c.Request.Context(), &buf, query); err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="class-%s.ics"`, query.ClassID))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// BySlot godoc
// @Summary Find the lesson of a class subject at a date and lesson number
// @Tags Lessons
// @Produce json
// @Param classSubjectId query string true "Class subject ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param lessonNumber query int true "Lesson number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/by-slot [get]
func (h *LessonHandler) BySlot(c *gin.Context) {
	classSubjectID := c.Query("classSubjectId")
	date, err := models.ParseDate(c.Query("date"))
	if err != nil || classSubjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classSubjectId and a valid date are required"))
		return
	}
	lessonNumber, err := strconv.Atoi(c.Query("lessonNumber"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lessonNumber must be an integer"))
		return
	}
	lesson, err := h.lessons.FindBySlot(c.Request.Context(), classSubjectID, date, lessonNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Create godoc
// @Summary Create a manual lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}
	lesson, err := h.lessons.CreateManual(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// UpdateStatus godoc
// @Summary Mark a lesson held or cancelled
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.UpdateLessonStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/status [patch]
func (h *LessonHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateLessonStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	lesson, err := h.lessons.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// generationRange resolves the date range a generate request asks for.
func generationRange(req dto.GenerateLessonsRequest) (time.Time, time.Time, error) {
	switch {
	case req.StartDate != "" || req.EndDate != "":
		start, err := models.ParseDate(req.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "startDate and endDate must both be valid dates")
		}
		end, err := models.ParseDate(req.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "startDate and endDate must both be valid dates")
		}
		return start, end, nil
	case req.WeekStart != "":
		day, err := models.ParseDate(req.WeekStart)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "weekStart must be a valid date")
		}
		start := models.WeekStart(day)
		return start, start.AddDate(0, 0, 6), nil
	case req.Quarter != 0:
		if req.Month != 0 {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "month and quarter are mutually exclusive")
		}
		if req.Quarter < 1 || req.Quarter > 4 || req.Year < 2000 || req.Year > 2100 {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "year and quarter must both be set")
		}
		start := time.Date(req.Year, time.Month((req.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1), nil
	case req.Year != 0 || req.Month != 0:
		if req.Month < 1 || req.Month > 12 || req.Year < 2000 || req.Year > 2100 {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "year and month must both be set")
		}
		start := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1), nil
	}
	return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "one of startDate/endDate, weekStart, year/month or year/quarter is required")
}
