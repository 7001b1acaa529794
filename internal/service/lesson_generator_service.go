package service

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type generatorTemplateReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error)
}

type generatorSlotReader interface {
	ListByTemplate(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.TimetableSlot, error)
}

type calendarPolicyProvider interface {
	Get(ctx context.Context, branchID string) (*models.CalendarPolicy, error)
}

type lessonWriter interface {
	LockDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) error
	ListByClassesOnDate(ctx context.Context, exec sqlx.ExtContext, classIDs []string, date time.Time) ([]models.LessonInstance, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.LessonInstance) error
	InsertIgnoreConflict(ctx context.Context, exec sqlx.ExtContext, lesson *models.LessonInstance) (bool, error)
}

// lessonCacheInvalidator drops cached class lesson listings.
type lessonCacheInvalidator interface {
	InvalidateClasses(ctx context.Context, classIDs ...string)
}

// LessonGeneratorService materializes dated lessons from the slots of an active template.
type LessonGeneratorService struct {
	templates    generatorTemplateReader
	slots        generatorSlotReader
	policies     calendarPolicyProvider
	lessons      lessonWriter
	tx           txProvider
	cache        lessonCacheInvalidator
	metrics      *MetricsService
	logger       *zap.Logger
	maxRangeDays int
}

// LessonGeneratorConfig wires optional collaborators and limits.
type LessonGeneratorConfig struct {
	Cache        lessonCacheInvalidator
	Metrics      *MetricsService
	Logger       *zap.Logger
	MaxRangeDays int
}

// NewLessonGeneratorService constructs the generator.
func NewLessonGeneratorService(templates generatorTemplateReader, slots generatorSlotReader, policies calendarPolicyProvider, lessons lessonWriter, tx txProvider, cfg LessonGeneratorConfig) *LessonGeneratorService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 366
	}
	return &LessonGeneratorService{
		templates:    templates,
		slots:        slots,
		policies:     policies,
		lessons:      lessons,
		tx:           tx,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxRangeDays: cfg.MaxRangeDays,
	}
}

// ValidateTemplate checks that templateID exists and is active, so queued runs fail fast for the caller.
func (s *LessonGeneratorService) ValidateTemplate(ctx context.Context, templateID string) error {
	_, err := s.activeTemplate(ctx, templateID)
	return err
}

func (s *LessonGeneratorService) activeTemplate(ctx context.Context, templateID string) (*models.TimetableTemplate, error) {
	tmpl, err := s.templates.FindByID(ctx, nil, templateID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		return nil, internalError(err, "failed to load timetable template")
	}
	if !tmpl.IsActive {
		return nil, validationError("timetable template %s is not active", templateID)
	}
	return tmpl, nil
}

// GenerateForWeek generates the Monday..Sunday week containing weekStart.
func (s *LessonGeneratorService) GenerateForWeek(ctx context.Context, templateID string, weekStart time.Time) (*models.GenerationResult, error) {
	start := models.WeekStart(weekStart)
	return s.GenerateForPeriod(ctx, templateID, start, start.AddDate(0, 0, 6), true)
}

// GenerateForMonth generates every date of a calendar month.
func (s *LessonGeneratorService) GenerateForMonth(ctx context.Context, templateID string, year int, month time.Month) (*models.GenerationResult, error) {
	if month < time.January || month > time.December {
		return nil, validationError("month must be between 1 and 12")
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.GenerateForPeriod(ctx, templateID, start, start.AddDate(0, 1, -1), true)
}

// GenerateForQuarter generates the three months of a calendar quarter (1-4).
func (s *LessonGeneratorService) GenerateForQuarter(ctx context.Context, templateID string, year, quarter int) (*models.GenerationResult, error) {
	if quarter < 1 || quarter > 4 {
		return nil, validationError("quarter must be between 1 and 4")
	}
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return s.GenerateForPeriod(ctx, templateID, start, start.AddDate(0, 3, -1), true)
}

// GenerateForPeriod creates scheduled lessons for every allowed date in [start, end].
//
// Each date commits in its own transaction; a failure aborts the remaining dates while earlier
// ones stay. With skipExisting, positions already holding the same class subject are skipped and
// positions holding a different class subject are reported as collisions; nothing is overwritten.
// Without skipExisting, an occupied position aborts the run with a conflict.
func (s *LessonGeneratorService) GenerateForPeriod(ctx context.Context, templateID string, start, end time.Time, skipExisting bool) (result *models.GenerationResult, err error) {
	start, end = models.DateOf(start), models.DateOf(end)
	if start.After(end) {
		return nil, validationError("startDate must not be after endDate")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > s.maxRangeDays {
		return nil, validationError("range of %d days exceeds the maximum of %d", days, s.maxRangeDays)
	}

	tmpl, err := s.activeTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	policy, err := s.policies.Get(ctx, tmpl.BranchID)
	if err != nil {
		return nil, passThrough(err, "failed to load calendar policy")
	}

	slots, err := s.slots.ListByTemplate(ctx, nil, templateID)
	if err != nil {
		return nil, internalError(err, "failed to list timetable slots")
	}
	byDay := make(map[int][]models.TimetableSlot)
	for _, slot := range slots {
		byDay[slot.DayOfWeek] = append(byDay[slot.DayOfWeek], slot)
	}

	result = &models.GenerationResult{
		TemplateID: templateID,
		StartDate:  start,
		EndDate:    end,
		Created:    []models.LessonInstance{},
		Collisions: []models.LessonCollision{},
	}
	runStart := time.Now()
	touched := make(map[string]struct{})
	defer func() {
		outcome := GenerationOutcomeSuccess
		if err != nil {
			outcome = GenerationOutcomeFailed
		}
		s.metrics.RecordGeneration(outcome, len(result.Created), result.Skipped, len(result.Collisions), time.Since(runStart))
		if len(touched) > 0 && s.cache != nil {
			classIDs := make([]string, 0, len(touched))
			for id := range touched {
				classIDs = append(classIDs, id)
			}
			sort.Strings(classIDs)
			s.cache.InvalidateClasses(ctx, classIDs...)
		}
	}()

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err = ctx.Err(); err != nil {
			return result, internalError(err, "lesson generation cancelled")
		}
		if !policy.IsWorkingDay(day) || policy.IsHoliday(day) {
			continue
		}
		daySlots := byDay[models.WeekdayIndex(day)]
		if len(daySlots) == 0 {
			continue
		}
		if err = s.generateDate(ctx, tmpl, day, daySlots, skipExisting, result, touched); err != nil {
			s.logger.Error("lesson generation aborted",
				zap.String("template_id", templateID),
				zap.String("date", day.Format(models.DateLayout)),
				zap.Int("created", len(result.Created)),
				zap.Error(err))
			return result, err
		}
	}

	s.logger.Info("lessons generated",
		zap.String("template_id", templateID),
		zap.String("start", start.Format(models.DateLayout)),
		zap.String("end", end.Format(models.DateLayout)),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", result.Skipped),
		zap.Int("collisions", len(result.Collisions)))
	return result, nil
}

func (s *LessonGeneratorService) generateDate(ctx context.Context, tmpl *models.TimetableTemplate, day time.Time, slots []models.TimetableSlot, skipExisting bool, result *models.GenerationResult, touched map[string]struct{}) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	txStart := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin generation transaction")
	}
	var created []models.LessonInstance
	skipped := 0
	var collisions []models.LessonCollision
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		result.Created = append(result.Created, created...)
		result.Skipped += skipped
		result.Collisions = append(result.Collisions, collisions...)
		for _, lesson := range created {
			touched[lesson.ClassID] = struct{}{}
		}
		s.metrics.ObserveDBQuery("generate_date", time.Since(txStart))
	}()

	if lockErr := s.lessons.LockDate(ctx, tx, day); lockErr != nil {
		err = internalError(lockErr, "failed to lock generation date")
		return err
	}

	existing := make(map[positionKey]models.LessonInstance)
	if skipExisting {
		classIDs := distinctClassIDs(slots)
		lessons, listErr := s.lessons.ListByClassesOnDate(ctx, tx, classIDs, day)
		if listErr != nil {
			err = internalError(listErr, "failed to read existing lessons")
			return err
		}
		for _, lesson := range lessons {
			existing[positionKey{classID: lesson.ClassID, lessonNumber: lesson.LessonNumber}] = lesson
		}
	}

	for _, slot := range slots {
		if skipExisting {
			if current, ok := existing[positionKey{classID: slot.ClassID, lessonNumber: slot.LessonNumber}]; ok {
				if current.ClassSubjectID == slot.ClassSubjectID {
					skipped++
					continue
				}
				collisions = append(collisions, models.LessonCollision{
					Date:                   day,
					ClassID:                slot.ClassID,
					LessonNumber:           slot.LessonNumber,
					SlotID:                 slot.ID,
					SlotClassSubjectID:     slot.ClassSubjectID,
					ExistingLessonID:       current.ID,
					ExistingClassSubjectID: current.ClassSubjectID,
				})
				s.logger.Warn("lesson position occupied by another class subject",
					zap.String("template_id", tmpl.ID),
					zap.String("slot_id", slot.ID),
					zap.String("class_id", slot.ClassID),
					zap.String("date", day.Format(models.DateLayout)),
					zap.Int("lesson_number", slot.LessonNumber),
					zap.String("existing_lesson_id", current.ID))
				continue
			}
		}

		lesson := lessonFromSlot(tmpl.ID, slot, day)
		if skipExisting {
			inserted, insertErr := s.lessons.InsertIgnoreConflict(ctx, tx, &lesson)
			if insertErr != nil {
				err = internalError(insertErr, "failed to insert lesson")
				return err
			}
			if !inserted {
				skipped++
				continue
			}
		} else if insertErr := s.lessons.Insert(ctx, tx, &lesson); insertErr != nil {
			if isUniqueViolation(insertErr) {
				err = conflictError("lesson " + lesson.Date.Format(models.DateLayout) + " for class " + lesson.ClassID + " already exists")
				return err
			}
			err = internalError(insertErr, "failed to insert lesson")
			return err
		}
		created = append(created, lesson)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = internalError(commitErr, "failed to commit generated lessons")
		return err
	}
	return nil
}

type positionKey struct {
	classID      string
	lessonNumber int
}

func lessonFromSlot(templateID string, slot models.TimetableSlot, day time.Time) models.LessonInstance {
	tmplID, slotID := templateID, slot.ID
	return models.LessonInstance{
		ClassSubjectID:   slot.ClassSubjectID,
		ClassID:          slot.ClassID,
		Date:             day,
		LessonNumber:     slot.LessonNumber,
		StartTime:        slot.StartTime,
		EndTime:          slot.EndTime,
		RoomID:           slot.RoomID,
		IsAutoGenerated:  true,
		SourceTemplateID: &tmplID,
		SourceSlotID:     &slotID,
		Status:           models.LessonStatusScheduled,
	}
}

func distinctClassIDs(slots []models.TimetableSlot) []string {
	seen := make(map[string]struct{}, len(slots))
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if _, ok := seen[slot.ClassID]; ok {
			continue
		}
		seen[slot.ClassID] = struct{}{}
		ids = append(ids, slot.ClassID)
	}
	return ids
}
