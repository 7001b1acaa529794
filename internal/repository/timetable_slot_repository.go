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

const slotColumns = `id, template_id, class_subject_id, class_id, day_of_week, lesson_number, start_time, end_time, room_id, created_at, updated_at`

// TimetableSlotRepository persists the recurring slots of a template.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository constructs repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTemplate returns slots ordered by day and lesson number.
func (r *TimetableSlotRepository) ListByTemplate(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.TimetableSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE template_id = $1 ORDER BY day_of_week, lesson_number, class_id`
	var slots []models.TimetableSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, templateID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// FindByID loads a slot.
func (r *TimetableSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM timetable_slots WHERE id = $1`
	var slot models.TimetableSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a slot.
func (r *TimetableSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	if slot == nil {
		return fmt.Errorf("slot payload is nil")
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `
INSERT INTO timetable_slots (id, template_id, class_subject_id, class_id, day_of_week, lesson_number, start_time, end_time, room_id, created_at, updated_at)
VALUES (:id, :template_id, :class_subject_id, :class_id, :day_of_week, :lesson_number, :start_time, :end_time, :room_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("insert timetable slot: %w", err)
	}
	return nil
}

// Update rewrites a slot in place.
func (r *TimetableSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE timetable_slots
SET class_subject_id = :class_subject_id, class_id = :class_id, day_of_week = :day_of_week, lesson_number = :lesson_number,
    start_time = :start_time, end_time = :end_time, room_id = :room_id, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot)
	if err != nil {
		return fmt.Errorf("update timetable slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update timetable slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a slot; generated lessons keep a null source_slot_id.
func (r *TimetableSlotRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetable_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete timetable slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
