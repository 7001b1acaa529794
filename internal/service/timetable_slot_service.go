package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type slotRepository interface {
	ListByTemplate(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.TimetableSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableSlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type slotTemplateLocker interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error)
}

type classSubjectResolver interface {
	FindByID(ctx context.Context, id string) (*models.ClassSubject, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.ClassSubject, error)
}

// TimetableSlotService edits template slots, rejecting double-bookings before they are written.
type TimetableSlotService struct {
	slots         slotRepository
	templates     slotTemplateLocker
	classSubjects classSubjectResolver
	detector      *ScheduleConflictDetector
	tx            txProvider
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewTimetableSlotService constructs the service.
func NewTimetableSlotService(slots slotRepository, templates slotTemplateLocker, classSubjects classSubjectResolver, detector *ScheduleConflictDetector, tx txProvider, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TimetableSlotService {
	if detector == nil {
		detector = NewScheduleConflictDetector()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableSlotService{
		slots:         slots,
		templates:     templates,
		classSubjects: classSubjects,
		detector:      detector,
		tx:            tx,
		validator:     validate,
		metrics:       metrics,
		logger:        logger,
	}
}

// ListSlots returns the slots of a template.
func (s *TimetableSlotService) ListSlots(ctx context.Context, templateID string) ([]models.TimetableSlot, error) {
	if _, err := s.templates.FindByID(ctx, nil, templateID); err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		return nil, internalError(err, "failed to load timetable template")
	}
	slots, err := s.slots.ListByTemplate(ctx, nil, templateID)
	if err != nil {
		return nil, internalError(err, "failed to list timetable slots")
	}
	return slots, nil
}

// AddSlot validates and inserts a slot while holding the template lock.
func (s *TimetableSlotService) AddSlot(ctx context.Context, templateID string, req dto.TimetableSlotRequest) (*models.TimetableSlot, error) {
	candidate, err := s.buildCandidate(ctx, templateID, "", req)
	if err != nil {
		return nil, err
	}
	err = s.withTemplateLock(ctx, templateID, func(tx *sqlx.Tx, existing []models.TimetableSlot) error {
		if err := s.validatePlacement(ctx, candidate.Slot, candidate.TeacherID, existing); err != nil {
			return err
		}
		return s.slots.Create(ctx, tx, &candidate.Slot)
	})
	if err != nil {
		return nil, s.translateWriteError(err, "failed to add timetable slot")
	}
	s.logger.Info("timetable slot added", zap.String("template_id", templateID), zap.String("slot_id", candidate.Slot.ID))
	return &candidate.Slot, nil
}

// UpdateSlot re-validates a slot against every other slot of its template and rewrites it.
func (s *TimetableSlotService) UpdateSlot(ctx context.Context, slotID string, req dto.TimetableSlotRequest) (*models.TimetableSlot, error) {
	current, err := s.slots.FindByID(ctx, nil, slotID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable slot")
		}
		return nil, internalError(err, "failed to load timetable slot")
	}
	candidate, err := s.buildCandidate(ctx, current.TemplateID, current.ID, req)
	if err != nil {
		return nil, err
	}
	candidate.Slot.CreatedAt = current.CreatedAt

	err = s.withTemplateLock(ctx, current.TemplateID, func(tx *sqlx.Tx, existing []models.TimetableSlot) error {
		if err := s.validatePlacement(ctx, candidate.Slot, candidate.TeacherID, existing); err != nil {
			return err
		}
		return s.slots.Update(ctx, tx, &candidate.Slot)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable slot")
		}
		return nil, s.translateWriteError(err, "failed to update timetable slot")
	}
	return &candidate.Slot, nil
}

// RemoveSlot deletes a slot. Lessons already generated from it are kept.
func (s *TimetableSlotService) RemoveSlot(ctx context.Context, slotID string) error {
	if err := s.slots.Delete(ctx, nil, slotID); err != nil {
		if isNotFound(err) {
			return notFoundError("timetable slot")
		}
		return internalError(err, "failed to remove timetable slot")
	}
	s.logger.Info("timetable slot removed", zap.String("slot_id", slotID))
	return nil
}

// CheckSlot runs every write-time check without persisting and returns the conflicts found.
func (s *TimetableSlotService) CheckSlot(ctx context.Context, templateID string, req dto.TimetableSlotRequest) ([]models.SlotConflict, error) {
	candidate, err := s.buildCandidate(ctx, templateID, "", req)
	if err != nil {
		return nil, err
	}
	if _, err := s.templates.FindByID(ctx, nil, templateID); err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		return nil, internalError(err, "failed to load timetable template")
	}
	existing, err := s.slots.ListByTemplate(ctx, nil, templateID)
	if err != nil {
		return nil, internalError(err, "failed to list timetable slots")
	}
	if err := checkUniquePosition(candidate.Slot, existing); err != nil {
		return nil, err
	}
	placements, err := s.placements(ctx, existing)
	if err != nil {
		return nil, err
	}
	conflicts := s.detector.CheckSlotConflicts(candidate, placements)
	if conflicts == nil {
		conflicts = []models.SlotConflict{}
	}
	return conflicts, nil
}

// BulkAddSlots imports several slots in one transaction. Each candidate is checked against the
// stored slots and the candidates accepted before it; nothing is written unless all pass.
func (s *TimetableSlotService) BulkAddSlots(ctx context.Context, templateID string, req dto.BulkTimetableSlotRequest) ([]models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk slot payload")
	}

	candidates := make([]models.SlotPlacement, 0, len(req.Slots))
	var problems []dto.BulkSlotProblem
	for i, item := range req.Slots {
		candidate, err := s.buildCandidate(ctx, templateID, "", item)
		if err != nil {
			problems = append(problems, dto.BulkSlotProblem{Index: i, Message: appErrors.FromError(err).Message})
			continue
		}
		candidates = append(candidates, candidate)
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "bulk slot import rejected"), problems)
	}

	batch := make(map[string]int, len(candidates))
	for i := range candidates {
		candidates[i].Slot.ID = uuid.NewString()
		batch[candidates[i].Slot.ID] = i
	}

	var conflicted []models.SlotConflict
	err := s.withTemplateLock(ctx, templateID, func(tx *sqlx.Tx, existing []models.TimetableSlot) error {
		accepted := append([]models.TimetableSlot{}, existing...)
		placements, err := s.placements(ctx, existing)
		if err != nil {
			return err
		}
		for i, candidate := range candidates {
			if err := checkUniquePosition(candidate.Slot, accepted); err != nil {
				problems = append(problems, dto.BulkSlotProblem{Index: i, Message: appErrors.FromError(err).Message})
				continue
			}
			conflicts := s.detector.CheckSlotConflicts(candidate, placements)
			if len(conflicts) > 0 {
				referToBatchItems(conflicts, batch)
				problems = append(problems, dto.BulkSlotProblem{Index: i, Message: "schedule conflict", Conflicts: conflicts})
				conflicted = append(conflicted, conflicts...)
				continue
			}
			accepted = append(accepted, candidate.Slot)
			placements = append(placements, candidate)
		}
		if len(problems) > 0 {
			kind := appErrors.ErrScheduleConflict
			if len(conflicted) == 0 {
				kind = appErrors.ErrValidation
			}
			return appErrors.WithDetails(appErrors.Clone(kind, "bulk slot import rejected"), problems)
		}
		for i := range candidates {
			if err := s.slots.Create(ctx, tx, &candidates[i].Slot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordScheduleConflicts(conflicted)
		return nil, s.translateWriteError(err, "failed to import timetable slots")
	}

	created := make([]models.TimetableSlot, 0, len(candidates))
	for _, c := range candidates {
		created = append(created, c.Slot)
	}
	s.logger.Info("timetable slots imported", zap.String("template_id", templateID), zap.Int("count", len(created)))
	return created, nil
}

// referToBatchItems names conflicts against earlier items of the same import by request index.
func referToBatchItems(conflicts []models.SlotConflict, batch map[string]int) {
	for i := range conflicts {
		idx, ok := batch[conflicts[i].SlotID]
		if !ok {
			continue
		}
		resource := "teacher"
		if conflicts[i].Type == models.ConflictRoom {
			resource = "room"
		}
		conflicts[i].Message = fmt.Sprintf("%s double-booked with item %d of this import", resource, idx)
	}
}

func (s *TimetableSlotService) buildCandidate(ctx context.Context, templateID, slotID string, req dto.TimetableSlotRequest) (models.SlotPlacement, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.SlotPlacement{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return models.SlotPlacement{}, validationError("startTime: %v", err)
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return models.SlotPlacement{}, validationError("endTime: %v", err)
	}
	if start >= end {
		return models.SlotPlacement{}, validationError("startTime must be before endTime")
	}
	if req.LessonNumber < models.MinLessonNumber || req.LessonNumber > models.MaxLessonNumber {
		return models.SlotPlacement{}, validationError("lessonNumber must be between %d and %d", models.MinLessonNumber, models.MaxLessonNumber)
	}

	cs, err := s.classSubjects.FindByID(ctx, req.ClassSubjectID)
	if err != nil {
		if isNotFound(err) {
			return models.SlotPlacement{}, notFoundError("class subject")
		}
		return models.SlotPlacement{}, internalError(err, "failed to resolve class subject")
	}

	return models.SlotPlacement{
		Slot: models.TimetableSlot{
			ID:             slotID,
			TemplateID:     templateID,
			ClassSubjectID: cs.ID,
			ClassID:        cs.ClassID,
			DayOfWeek:      *req.DayOfWeek,
			LessonNumber:   req.LessonNumber,
			StartTime:      start,
			EndTime:        end,
			RoomID:         trimOptional(req.RoomID),
		},
		TeacherID: cs.TeacherID,
	}, nil
}

// withTemplateLock runs fn inside a transaction holding the template row lock, handing it the
// freshly read slots of the template.
func (s *TimetableSlotService) withTemplateLock(ctx context.Context, templateID string, fn func(tx *sqlx.Tx, existing []models.TimetableSlot) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.templates.LockByID(ctx, tx, templateID); err != nil {
		if isNotFound(err) {
			err = notFoundError("timetable template")
		}
		return err
	}
	existing, err := s.slots.ListByTemplate(ctx, tx, templateID)
	if err != nil {
		return err
	}
	if err = fn(tx, existing); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *TimetableSlotService) validatePlacement(ctx context.Context, slot models.TimetableSlot, teacherID *string, existing []models.TimetableSlot) error {
	if err := checkUniquePosition(slot, existing); err != nil {
		return err
	}
	placements, err := s.placements(ctx, existing)
	if err != nil {
		return err
	}
	conflicts := s.detector.CheckSlotConflicts(models.SlotPlacement{Slot: slot, TeacherID: teacherID}, placements)
	if len(conflicts) > 0 {
		s.metrics.RecordScheduleConflicts(conflicts)
		s.logger.Info("timetable slot rejected", zap.String("template_id", slot.TemplateID), zap.Int("conflicts", len(conflicts)))
		return scheduleConflictError(conflicts)
	}
	return nil
}

func (s *TimetableSlotService) placements(ctx context.Context, slots []models.TimetableSlot) ([]models.SlotPlacement, error) {
	ids := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if _, ok := seen[slot.ClassSubjectID]; ok {
			continue
		}
		seen[slot.ClassSubjectID] = struct{}{}
		ids = append(ids, slot.ClassSubjectID)
	}
	subjects, err := s.classSubjects.FindByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(err, "failed to resolve class subjects")
	}
	placements := make([]models.SlotPlacement, 0, len(slots))
	for _, slot := range slots {
		placement := models.SlotPlacement{Slot: slot}
		if cs, ok := subjects[slot.ClassSubjectID]; ok {
			placement.TeacherID = cs.TeacherID
		}
		placements = append(placements, placement)
	}
	return placements, nil
}

func (s *TimetableSlotService) translateWriteError(err error, message string) error {
	if isUniqueViolation(err) {
		return conflictError("slot position was taken by a concurrent change")
	}
	return passThrough(err, message)
}

func checkUniquePosition(slot models.TimetableSlot, existing []models.TimetableSlot) error {
	for _, other := range existing {
		if slot.ID != "" && other.ID == slot.ID {
			continue
		}
		if other.ClassID == slot.ClassID && other.DayOfWeek == slot.DayOfWeek && other.LessonNumber == slot.LessonNumber {
			return validationError("class already has lesson %d on day %d (slot %s)", slot.LessonNumber, slot.DayOfWeek, other.ID)
		}
	}
	return nil
}
