package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ClassSubjectRepository reads class-subject mappings owned by the academic module.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository creates a new repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

// FindByID resolves a single class subject.
func (r *ClassSubjectRepository) FindByID(ctx context.Context, id string) (*models.ClassSubject, error) {
	const query = `SELECT id, class_id, subject_id, teacher_id FROM class_subjects WHERE id = $1`
	var cs models.ClassSubject
	if err := r.db.GetContext(ctx, &cs, query, id); err != nil {
		return nil, err
	}
	return &cs, nil
}

// FindByIDs resolves several class subjects keyed by id; unknown ids are absent from the map.
func (r *ClassSubjectRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.ClassSubject, error) {
	result := make(map[string]models.ClassSubject, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	const query = `SELECT id, class_id, subject_id, teacher_id FROM class_subjects WHERE id = ANY($1)`
	var rows []models.ClassSubject
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find class subjects: %w", err)
	}
	for _, cs := range rows {
		result[cs.ID] = cs
	}
	return result, nil
}
