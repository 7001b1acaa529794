package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const lessonColumns = `id, class_subject_id, class_id, date, lesson_number, start_time, end_time, room_id, is_auto_generated, source_template_id, source_slot_id, status, created_at, updated_at`

const insertLessonQuery = `
INSERT INTO lesson_instances (id, class_subject_id, class_id, date, lesson_number, start_time, end_time, room_id, is_auto_generated, source_template_id, source_slot_id, status, created_at, updated_at)
VALUES (:id, :class_subject_id, :class_id, :date, :lesson_number, :start_time, :end_time, :room_id, :is_auto_generated, :source_template_id, :source_slot_id, :status, :created_at, :updated_at)`

// LessonInstanceRepository persists dated lessons.
type LessonInstanceRepository struct {
	db *sqlx.DB
}

// NewLessonInstanceRepository constructs repository.
func NewLessonInstanceRepository(db *sqlx.DB) *LessonInstanceRepository {
	return &LessonInstanceRepository{db: db}
}

func (r *LessonInstanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// lessonDateLockSpace namespaces the per-date advisory locks taken by LockDate.
const lessonDateLockSpace = 0x4c53

// LockDate takes a transaction-scoped advisory lock on one calendar date. It must run inside a
// transaction; concurrent writers of the same date queue on it until commit or rollback.
func (r *LessonInstanceRepository) LockDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) error {
	const query = `SELECT pg_advisory_xact_lock($1, $2)`
	days := models.DateOf(date).Unix() / 86400
	if _, err := r.exec(exec).ExecContext(ctx, query, lessonDateLockSpace, int32(days)); err != nil {
		return fmt.Errorf("lock lesson date: %w", err)
	}
	return nil
}

// lessonWithTeacher is a lesson joined with the teacher of its class subject.
type lessonWithTeacher struct {
	models.LessonInstance
	TeacherID *string `db:"teacher_id"`
}

func prepareLesson(lesson *models.LessonInstance) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusScheduled
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	lesson.Date = models.DateOf(lesson.Date)
}

// Insert stores a lesson and fails on a duplicate (class, date, lesson number).
func (r *LessonInstanceRepository) Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.LessonInstance) error {
	if lesson == nil {
		return fmt.Errorf("lesson payload is nil")
	}
	prepareLesson(lesson)
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), insertLessonQuery, lesson); err != nil {
		return fmt.Errorf("insert lesson instance: %w", err)
	}
	return nil
}

// InsertIgnoreConflict stores a lesson unless its (class, date, lesson number) is taken; it reports whether a row was written.
func (r *LessonInstanceRepository) InsertIgnoreConflict(ctx context.Context, exec sqlx.ExtContext, lesson *models.LessonInstance) (bool, error) {
	if lesson == nil {
		return false, fmt.Errorf("lesson payload is nil")
	}
	prepareLesson(lesson)
	query := insertLessonQuery + `
ON CONFLICT (class_id, date, lesson_number) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lesson)
	if err != nil {
		return false, fmt.Errorf("insert lesson instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lesson instance rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindByID loads a lesson.
func (r *LessonInstanceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LessonInstance, error) {
	query := `SELECT ` + lessonColumns + ` FROM lesson_instances WHERE id = $1`
	var lesson models.LessonInstance
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindBySlot looks a lesson up by class subject, date and lesson number.
func (r *LessonInstanceRepository) FindBySlot(ctx context.Context, classSubjectID string, date time.Time, lessonNumber int) (*models.LessonInstance, error) {
	query := `SELECT ` + lessonColumns + ` FROM lesson_instances WHERE class_subject_id = $1 AND date = $2 AND lesson_number = $3`
	var lesson models.LessonInstance
	if err := r.db.GetContext(ctx, &lesson, query, classSubjectID, models.DateOf(date), lessonNumber); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByClassesOnDate returns the lessons of the given classes on one date.
func (r *LessonInstanceRepository) ListByClassesOnDate(ctx context.Context, exec sqlx.ExtContext, classIDs []string, date time.Time) ([]models.LessonInstance, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + lessonColumns + ` FROM lesson_instances WHERE date = $1 AND class_id = ANY($2) ORDER BY class_id, lesson_number`
	var lessons []models.LessonInstance
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lessons, query, models.DateOf(date), pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list lessons on date: %w", err)
	}
	return lessons, nil
}

// ListForClass returns a class's lessons between from and to inclusive.
func (r *LessonInstanceRepository) ListForClass(ctx context.Context, filter models.LessonFilter) ([]models.LessonInstance, error) {
	query := `SELECT ` + lessonColumns + ` FROM lesson_instances WHERE class_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date, lesson_number`
	var lessons []models.LessonInstance
	if err := r.db.SelectContext(ctx, &lessons, query, filter.ClassID, models.DateOf(filter.From), models.DateOf(filter.To)); err != nil {
		return nil, fmt.Errorf("list lessons for class: %w", err)
	}
	return lessons, nil
}

// ListActiveWithTeachersOnDate returns non-cancelled lessons of a date with the teacher resolved.
func (r *LessonInstanceRepository) ListActiveWithTeachersOnDate(ctx context.Context, exec sqlx.ExtContext, date time.Time) ([]models.LessonPlacement, error) {
	const query = `
SELECT li.id, li.class_subject_id, li.class_id, li.date, li.lesson_number, li.start_time, li.end_time, li.room_id,
       li.is_auto_generated, li.source_template_id, li.source_slot_id, li.status, li.created_at, li.updated_at,
       cs.teacher_id
FROM lesson_instances li
JOIN class_subjects cs ON cs.id = li.class_subject_id
WHERE li.date = $1 AND li.status <> $2`
	var rows []lessonWithTeacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, models.DateOf(date), models.LessonStatusCancelled); err != nil {
		return nil, fmt.Errorf("list lessons with teachers: %w", err)
	}
	placements := make([]models.LessonPlacement, 0, len(rows))
	for _, row := range rows {
		placements = append(placements, models.LessonPlacement{Lesson: row.LessonInstance, TeacherID: row.TeacherID})
	}
	return placements, nil
}

// UpdateStatus moves a lesson from one status to another; it returns sql.ErrNoRows when the lesson is missing or no longer in from.
func (r *LessonInstanceRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.LessonStatus) error {
	const query = `UPDATE lesson_instances SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("lesson status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
