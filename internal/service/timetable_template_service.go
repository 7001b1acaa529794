package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type templateRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error)
	ListByBranchYear(ctx context.Context, branchID, academicYearID string) ([]models.TimetableTemplate, error)
	LockBranchYear(ctx context.Context, exec sqlx.ExtContext, branchID, academicYearID string) ([]string, error)
	Activate(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error
	Update(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	HasGeneratedLessons(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type academicYearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// activationAttempts bounds Activate: the first try plus one retry.
const activationAttempts = 2

// TimetableTemplateService manages weekly templates and the single-active rule.
type TimetableTemplateService struct {
	repo      templateRepository
	years     academicYearReader
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableTemplateService constructs the service.
func NewTimetableTemplateService(repo templateRepository, years academicYearReader, tx txProvider, validate *validator.Validate, logger *zap.Logger) *TimetableTemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableTemplateService{repo: repo, years: years, tx: tx, validator: validate, logger: logger}
}

// Create stores a new inactive template after checking its window against the academic year.
func (s *TimetableTemplateService) Create(ctx context.Context, req dto.CreateTimetableTemplateRequest) (*models.TimetableTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	year, err := s.years.FindByID(ctx, req.AcademicYearID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("academic year")
		}
		return nil, internalError(err, "failed to load academic year")
	}
	if year.BranchID != req.BranchID {
		return nil, validationError("academic year %s does not belong to branch %s", year.ID, req.BranchID)
	}

	from, until, err := parseEffectiveWindow(req.EffectiveFrom, req.EffectiveUntil, year)
	if err != nil {
		return nil, err
	}

	tmpl := &models.TimetableTemplate{
		BranchID:       req.BranchID,
		AcademicYearID: req.AcademicYearID,
		Name:           strings.TrimSpace(req.Name),
		Description:    trimOptional(req.Description),
		EffectiveFrom:  from,
		EffectiveUntil: until,
	}
	if err := s.repo.Create(ctx, nil, tmpl); err != nil {
		return nil, internalError(err, "failed to create timetable template")
	}
	s.logger.Info("timetable template created", zap.String("template_id", tmpl.ID), zap.String("branch_id", tmpl.BranchID))
	return tmpl, nil
}

// Get returns a template by id.
func (s *TimetableTemplateService) Get(ctx context.Context, id string) (*models.TimetableTemplate, error) {
	tmpl, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		return nil, internalError(err, "failed to load timetable template")
	}
	return tmpl, nil
}

// List returns the templates of a branch and academic year.
func (s *TimetableTemplateService) List(ctx context.Context, query dto.TimetableTemplateQuery) ([]models.TimetableTemplate, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "branchId and academicYearId are required")
	}
	templates, err := s.repo.ListByBranchYear(ctx, query.BranchID, query.AcademicYearID)
	if err != nil {
		return nil, internalError(err, "failed to list timetable templates")
	}
	return templates, nil
}

// Update rewrites name, description and effective window of a template that has not produced lessons yet.
func (s *TimetableTemplateService) Update(ctx context.Context, id string, req dto.UpdateTimetableTemplateRequest) (*models.TimetableTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoGeneratedLessons(ctx, tmpl.ID, "updated"); err != nil {
		return nil, err
	}

	year, err := s.years.FindByID(ctx, tmpl.AcademicYearID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("academic year")
		}
		return nil, internalError(err, "failed to load academic year")
	}
	from, until, err := parseEffectiveWindow(req.EffectiveFrom, req.EffectiveUntil, year)
	if err != nil {
		return nil, err
	}

	tmpl.Name = strings.TrimSpace(req.Name)
	tmpl.Description = trimOptional(req.Description)
	tmpl.EffectiveFrom = from
	tmpl.EffectiveUntil = until
	if err := s.repo.Update(ctx, nil, tmpl); err != nil {
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		return nil, internalError(err, "failed to update timetable template")
	}
	return tmpl, nil
}

// Delete removes a template and its slots unless lessons were generated from it.
func (s *TimetableTemplateService) Delete(ctx context.Context, id string) error {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureNoGeneratedLessons(ctx, tmpl.ID, "deleted"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, nil, tmpl.ID); err != nil {
		if isNotFound(err) {
			return notFoundError("timetable template")
		}
		return internalError(err, "failed to delete timetable template")
	}
	s.logger.Info("timetable template deleted", zap.String("template_id", tmpl.ID))
	return nil
}

// Activate makes the template the single active one of its branch and academic year.
// A racing activation is retried once before surfacing a conflict.
func (s *TimetableTemplateService) Activate(ctx context.Context, id string) (*models.TimetableTemplate, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl.IsActive {
		return tmpl, nil
	}

	for attempt := 1; attempt <= activationAttempts; attempt++ {
		err = s.activateOnce(ctx, tmpl)
		if err == nil {
			break
		}
		if isNotFound(err) {
			return nil, notFoundError("timetable template")
		}
		if !isRetryableTxError(err) {
			return nil, internalError(err, "failed to activate timetable template")
		}
		s.logger.Warn("timetable template activation raced", zap.String("template_id", id), zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, conflictError("template activation conflicted with a concurrent change, retry")
	}

	s.logger.Info("timetable template activated", zap.String("template_id", tmpl.ID), zap.String("branch_id", tmpl.BranchID), zap.String("academic_year_id", tmpl.AcademicYearID))
	return s.Get(ctx, id)
}

func (s *TimetableTemplateService) activateOnce(ctx context.Context, tmpl *models.TimetableTemplate) (err error) {
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

	if _, err = s.repo.LockBranchYear(ctx, tx, tmpl.BranchID, tmpl.AcademicYearID); err != nil {
		return err
	}
	if err = s.repo.Activate(ctx, tx, tmpl); err != nil {
		return err
	}
	return tx.Commit()
}

// Deactivate clears the active flag; deactivating an inactive template is a no-op.
func (s *TimetableTemplateService) Deactivate(ctx context.Context, id string) (*models.TimetableTemplate, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return tmpl, nil
	}
	if err := s.repo.Deactivate(ctx, nil, id); err != nil {
		return nil, internalError(err, "failed to deactivate timetable template")
	}
	s.logger.Info("timetable template deactivated", zap.String("template_id", id))
	return s.Get(ctx, id)
}

func (s *TimetableTemplateService) ensureNoGeneratedLessons(ctx context.Context, id, action string) error {
	generated, err := s.repo.HasGeneratedLessons(ctx, nil, id)
	if err != nil {
		return internalError(err, "failed to inspect generated lessons")
	}
	if generated {
		return conflictError("timetable template has generated lessons and cannot be " + action)
	}
	return nil
}

func parseEffectiveWindow(rawFrom string, rawUntil *string, year *models.AcademicYear) (time.Time, *time.Time, error) {
	from, err := models.ParseDate(rawFrom)
	if err != nil {
		return time.Time{}, nil, validationError("effectiveFrom: %v", err)
	}
	if !year.Contains(from) {
		return time.Time{}, nil, validationError("effectiveFrom %s is outside academic year %s", rawFrom, year.Name)
	}
	if rawUntil == nil || strings.TrimSpace(*rawUntil) == "" {
		return from, nil, nil
	}
	until, err := models.ParseDate(*rawUntil)
	if err != nil {
		return time.Time{}, nil, validationError("effectiveUntil: %v", err)
	}
	if until.Before(from) {
		return time.Time{}, nil, validationError("effectiveUntil must not be before effectiveFrom")
	}
	if !year.Contains(until) {
		return time.Time{}, nil, validationError("effectiveUntil %s is outside academic year %s", *rawUntil, year.Name)
	}
	return from, &until, nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
