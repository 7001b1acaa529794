package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const templateColumns = `id, branch_id, academic_year_id, name, description, effective_from, effective_until, is_active, version, created_at, updated_at`

// TimetableTemplateRepository persists weekly timetable templates.
type TimetableTemplateRepository struct {
	db *sqlx.DB
}

// NewTimetableTemplateRepository constructs repository.
func NewTimetableTemplateRepository(db *sqlx.DB) *TimetableTemplateRepository {
	return &TimetableTemplateRepository{db: db}
}

func (r *TimetableTemplateRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new inactive template.
func (r *TimetableTemplateRepository) Create(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error {
	if tmpl == nil {
		return fmt.Errorf("template payload is nil")
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	tmpl.IsActive = false
	if tmpl.Version == 0 {
		tmpl.Version = 1
	}

	const query = `
INSERT INTO timetable_templates (id, branch_id, academic_year_id, name, description, effective_from, effective_until, is_active, version, created_at, updated_at)
VALUES (:id, :branch_id, :academic_year_id, :name, :description, :effective_from, :effective_until, :is_active, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tmpl); err != nil {
		return fmt.Errorf("insert timetable template: %w", err)
	}
	return nil
}

// FindByID loads a template by id.
func (r *TimetableTemplateRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM timetable_templates WHERE id = $1`
	var tmpl models.TimetableTemplate
	if err := sqlx.GetContext(ctx, r.exec(exec), &tmpl, query, id); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LockByID loads a template and holds its row lock until the transaction ends.
func (r *TimetableTemplateRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM timetable_templates WHERE id = $1 FOR UPDATE`
	var tmpl models.TimetableTemplate
	if err := sqlx.GetContext(ctx, r.exec(exec), &tmpl, query, id); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ListByBranchYear returns the templates of a branch and academic year, newest first.
func (r *TimetableTemplateRepository) ListByBranchYear(ctx context.Context, branchID, academicYearID string) ([]models.TimetableTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM timetable_templates WHERE branch_id = $1 AND academic_year_id = $2 ORDER BY created_at DESC`
	var templates []models.TimetableTemplate
	if err := r.db.SelectContext(ctx, &templates, query, branchID, academicYearID); err != nil {
		return nil, fmt.Errorf("list timetable templates: %w", err)
	}
	return templates, nil
}

// ListActive returns every active template across branches.
func (r *TimetableTemplateRepository) ListActive(ctx context.Context) ([]models.TimetableTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM timetable_templates WHERE is_active ORDER BY branch_id, academic_year_id`
	var templates []models.TimetableTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list active timetable templates: %w", err)
	}
	return templates, nil
}

// LockBranchYear row-locks every template of the branch and academic year.
func (r *TimetableTemplateRepository) LockBranchYear(ctx context.Context, exec sqlx.ExtContext, branchID, academicYearID string) ([]string, error) {
	const query = `SELECT id FROM timetable_templates WHERE branch_id = $1 AND academic_year_id = $2 FOR UPDATE`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, branchID, academicYearID); err != nil {
		return nil, fmt.Errorf("lock timetable templates: %w", err)
	}
	return ids, nil
}

// Activate clears the current active template of the branch and academic year, then marks tmpl active.
// Callers hold the rows from LockBranchYear so both statements see a stable set.
func (r *TimetableTemplateRepository) Activate(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	const clearQuery = `
UPDATE timetable_templates
SET is_active = FALSE, version = version + 1, updated_at = $1
WHERE branch_id = $2 AND academic_year_id = $3 AND is_active AND id <> $4`
	if _, err := target.ExecContext(ctx, clearQuery, now, tmpl.BranchID, tmpl.AcademicYearID, tmpl.ID); err != nil {
		return fmt.Errorf("clear active timetable template: %w", err)
	}

	const activateQuery = `
UPDATE timetable_templates
SET is_active = TRUE, version = version + 1, updated_at = $1
WHERE id = $2 AND branch_id = $3 AND academic_year_id = $4`
	result, err := target.ExecContext(ctx, activateQuery, now, tmpl.ID, tmpl.BranchID, tmpl.AcademicYearID)
	if err != nil {
		return fmt.Errorf("activate timetable template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate timetable template rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate clears the active flag; a template that is already inactive is left untouched.
func (r *TimetableTemplateRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE timetable_templates SET is_active = FALSE, version = version + 1, updated_at = $1 WHERE id = $2 AND is_active`
	if _, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate timetable template: %w", err)
	}
	return nil
}

// Update rewrites the descriptive fields and effective window.
func (r *TimetableTemplateRepository) Update(ctx context.Context, exec sqlx.ExtContext, tmpl *models.TimetableTemplate) error {
	tmpl.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE timetable_templates
SET name = :name, description = :description, effective_from = :effective_from, effective_until = :effective_until,
    version = version + 1, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tmpl)
	if err != nil {
		return fmt.Errorf("update timetable template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update timetable template rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	tmpl.Version++
	return nil
}

// Delete removes a template and, through the cascade, its slots.
func (r *TimetableTemplateRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetable_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete timetable template rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasGeneratedLessons reports whether any lesson instance was generated from the template.
func (r *TimetableTemplateRepository) HasGeneratedLessons(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM lesson_instances WHERE source_template_id = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, id); err != nil {
		return false, fmt.Errorf("check generated lessons: %w", err)
	}
	return exists, nil
}
