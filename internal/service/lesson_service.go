package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/ical"
)

type lessonRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LessonInstance, error)
	FindBySlot(ctx context.Context, classSubjectID string, date time.Time, lessonNumber int) (*models.LessonInstance, error)
	ListForClass(ctx context.Context, filter models.LessonFilter) ([]models.LessonInstance, error)
	ListActiveWithTeachersOnDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) ([]models.LessonPlacement, error)
	LockDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) error
	Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.LessonInstance) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.LessonStatus) error
}

type lessonClassSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSubject, error)
}

// LessonServiceConfig wires optional collaborators and limits.
type LessonServiceConfig struct {
	Cache        *CacheService
	CacheTTL     time.Duration
	Metrics      *MetricsService
	Logger       *zap.Logger
	Validator    *validator.Validate
	MaxRangeDays int
}

// LessonService reads dated lessons, creates manual ones and drives their status.
type LessonService struct {
	lessons       lessonRepository
	classSubjects lessonClassSubjectReader
	detector      *ScheduleConflictDetector
	tx            txProvider
	cache         *CacheService
	cacheTTL      time.Duration
	metrics       *MetricsService
	logger        *zap.Logger
	validator     *validator.Validate
	maxRangeDays  int
}

// NewLessonService constructs the service.
func NewLessonService(lessons lessonRepository, classSubjects lessonClassSubjectReader, detector *ScheduleConflictDetector, tx txProvider, cfg LessonServiceConfig) *LessonService {
	if detector == nil {
		detector = NewScheduleConflictDetector()
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 366
	}
	return &LessonService{
		lessons:       lessons,
		classSubjects: classSubjects,
		detector:      detector,
		tx:            tx,
		cache:         cfg.Cache,
		cacheTTL:      cfg.CacheTTL,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		validator:     cfg.Validator,
		maxRangeDays:  cfg.MaxRangeDays,
	}
}

func classLessonsCacheKey(classID string, from, to time.Time) string {
	return fmt.Sprintf("lessons:class:%s:%s:%s", classID, from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// Get returns a lesson by id.
func (s *LessonService) Get(ctx context.Context, id string) (*models.LessonInstance, error) {
	lesson, err := s.lessons.FindByID(ctx, nil, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("lesson")
		}
		return nil, internalError(err, "failed to load lesson")
	}
	return lesson, nil
}

// FindBySlot returns the lesson of a class subject at a date and lesson number.
func (s *LessonService) FindBySlot(ctx context.Context, classSubjectID string, date time.Time, lessonNumber int) (*models.LessonInstance, error) {
	lesson, err := s.lessons.FindBySlot(ctx, classSubjectID, date, lessonNumber)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("lesson")
		}
		return nil, internalError(err, "failed to load lesson")
	}
	return lesson, nil
}

// ListForClass returns a class's lessons between two dates; the bool reports a cache hit.
func (s *LessonService) ListForClass(ctx context.Context, query dto.LessonRangeQuery) ([]models.LessonInstance, bool, error) {
	filter, err := s.rangeFilter(query)
	if err != nil {
		return nil, false, err
	}

	key := classLessonsCacheKey(filter.ClassID, filter.From, filter.To)
	var cached []models.LessonInstance
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	lessons, err := s.lessons.ListForClass(ctx, filter)
	if err != nil {
		return nil, false, internalError(err, "failed to list lessons")
	}
	if lessons == nil {
		lessons = []models.LessonInstance{}
	}
	_ = s.cache.Set(ctx, key, lessons, s.cacheTTL)
	return lessons, false, nil
}

// WeeklySchedule groups a class's lessons of one Monday..Sunday week by weekday.
func (s *LessonService) WeeklySchedule(ctx context.Context, query dto.WeeklyScheduleQuery) (*models.WeeklySchedule, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "classId and weekStart are required")
	}
	weekStart, err := models.ParseDate(query.WeekStart)
	if err != nil {
		return nil, validationError("weekStart: %v", err)
	}
	weekStart = models.WeekStart(weekStart)
	weekEnd := weekStart.AddDate(0, 0, 6)

	lessons, _, err := s.ListForClass(ctx, dto.LessonRangeQuery{
		ClassID: query.ClassID,
		From:    weekStart.Format(models.DateLayout),
		To:      weekEnd.Format(models.DateLayout),
	})
	if err != nil {
		return nil, err
	}

	schedule := &models.WeeklySchedule{ClassID: query.ClassID, WeekStart: weekStart, Days: make(map[int][]models.LessonInstance)}
	for _, lesson := range lessons {
		idx := models.WeekdayIndex(lesson.Date)
		schedule.Days[idx] = append(schedule.Days[idx], lesson)
	}
	return schedule, nil
}

// CreateManual stores an ad hoc lesson after checking it against the other lessons of its date.
func (s *LessonService) CreateManual(ctx context.Context, req dto.CreateLessonRequest) (*models.LessonInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, validationError("date: %v", err)
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return nil, validationError("startTime: %v", err)
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return nil, validationError("endTime: %v", err)
	}
	if start >= end {
		return nil, validationError("startTime must be before endTime")
	}

	cs, err := s.classSubjects.FindByID(ctx, req.ClassSubjectID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("class subject")
		}
		return nil, internalError(err, "failed to resolve class subject")
	}

	lesson := &models.LessonInstance{
		ClassSubjectID: cs.ID,
		ClassID:        cs.ClassID,
		Date:           date,
		LessonNumber:   req.LessonNumber,
		StartTime:      start,
		EndTime:        end,
		RoomID:         trimOptional(req.RoomID),
		Status:         models.LessonStatusScheduled,
	}
	if err := s.insertManual(ctx, lesson, cs.TeacherID); err != nil {
		if isUniqueViolation(err) {
			return nil, conflictError(fmt.Sprintf("class %s already has lesson %d on %s", lesson.ClassID, lesson.LessonNumber, req.Date))
		}
		return nil, passThrough(err, "failed to create lesson")
	}

	s.InvalidateClasses(ctx, lesson.ClassID)
	s.logger.Info("manual lesson created", zap.String("lesson_id", lesson.ID), zap.String("class_id", lesson.ClassID), zap.String("date", req.Date))
	return lesson, nil
}

func (s *LessonService) insertManual(ctx context.Context, lesson *models.LessonInstance, teacherID *string) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Serializes manual creations on the same date so two writers cannot both pass the conflict check.
	if err = s.lessons.LockDate(ctx, tx, lesson.Date); err != nil {
		return err
	}
	sameDay, err := s.lessons.ListActiveWithTeachersOnDate(ctx, tx, lesson.Date)
	if err != nil {
		return err
	}
	conflicts := s.detector.CheckLessonConflicts(models.LessonPlacement{Lesson: *lesson, TeacherID: teacherID}, sameDay)
	if len(conflicts) > 0 {
		s.metrics.RecordScheduleConflicts(conflicts)
		err = scheduleConflictError(conflicts)
		return err
	}
	if err = s.lessons.Insert(ctx, tx, lesson); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateStatus moves a lesson along scheduled -> held -> cancelled (or scheduled -> cancelled).
func (s *LessonService) UpdateStatus(ctx context.Context, id string, req dto.UpdateLessonStatusRequest) (*models.LessonInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	next := models.LessonStatus(req.Status)

	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lesson.Status.CanTransition(next) {
		return nil, validationError("lesson cannot move from %s to %s", lesson.Status, next)
	}
	if err := s.lessons.UpdateStatus(ctx, nil, id, lesson.Status, next); err != nil {
		if isNotFound(err) {
			return nil, conflictError("lesson status changed concurrently, reload and retry")
		}
		return nil, internalError(err, "failed to update lesson status")
	}

	s.InvalidateClasses(ctx, lesson.ClassID)
	s.logger.Info("lesson status updated", zap.String("lesson_id", id), zap.String("from", string(lesson.Status)), zap.String("to", string(next)))
	lesson.Status = next
	lesson.UpdatedAt = time.Now().UTC()
	return lesson, nil
}

// ExportClassCalendar writes the class's lessons in the range as an iCalendar feed.
func (s *LessonService) ExportClassCalendar(ctx context.Context, w io.Writer, query dto.LessonRangeQuery) error {
	filter, err := s.rangeFilter(query)
	if err != nil {
		return err
	}
	lessons, err := s.lessons.ListForClass(ctx, filter)
	if err != nil {
		return internalError(err, "failed to list lessons")
	}

	events := make([]ical.Event, 0, len(lessons))
	for _, lesson := range lessons {
		event := ical.Event{
			UID:         lesson.ID + "@sma-timetable",
			Summary:     fmt.Sprintf("Lesson %d", lesson.LessonNumber),
			Description: fmt.Sprintf("class subject %s (%s)", lesson.ClassSubjectID, lesson.Status),
			Start:       lesson.StartTime.On(lesson.Date),
			End:         lesson.EndTime.On(lesson.Date),
			Cancelled:   lesson.Status == models.LessonStatusCancelled,
		}
		if lesson.RoomID != nil {
			event.Location = *lesson.RoomID
		}
		events = append(events, event)
	}
	if err := ical.Write(w, "Class "+filter.ClassID, events, time.Now().UTC()); err != nil {
		return internalError(err, "failed to render calendar")
	}
	return nil
}

// InvalidateClasses drops cached lesson listings of the given classes.
func (s *LessonService) InvalidateClasses(ctx context.Context, classIDs ...string) {
	for _, classID := range classIDs {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("lessons:class:%s:*", classID))
	}
}

func (s *LessonService) rangeFilter(query dto.LessonRangeQuery) (models.LessonFilter, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.LessonFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "classId, from and to are required")
	}
	from, err := models.ParseDate(query.From)
	if err != nil {
		return models.LessonFilter{}, validationError("from: %v", err)
	}
	to, err := models.ParseDate(query.To)
	if err != nil {
		return models.LessonFilter{}, validationError("to: %v", err)
	}
	if from.After(to) {
		return models.LessonFilter{}, validationError("from must not be after to")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > s.maxRangeDays {
		return models.LessonFilter{}, validationError("range of %d days exceeds the maximum of %d", days, s.maxRangeDays)
	}
	return models.LessonFilter{ClassID: query.ClassID, From: from, To: to}, nil
}
