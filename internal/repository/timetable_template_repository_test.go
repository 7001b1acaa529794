package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var templateRowColumns = []string{"id", "branch_id", "academic_year_id", "name", "description", "effective_from", "effective_until", "is_active", "version", "created_at", "updated_at"}

func TestTimetableTemplateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_templates")).
		WithArgs(sqlmock.AnyArg(), "branch-1", "year-1", "Semester 1", nil, sqlmock.AnyArg(), nil, false, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tmpl := &models.TimetableTemplate{
		BranchID:       "branch-1",
		AcademicYearID: "year-1",
		Name:           "Semester 1",
		EffectiveFrom:  time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	}
	require.NoError(t, repo.Create(context.Background(), nil, tmpl))
	assert.NotEmpty(t, tmpl.ID)
	assert.False(t, tmpl.IsActive)
	assert.Equal(t, 1, tmpl.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_templates WHERE id = $1")).
		WithArgs("tmpl-1").
		WillReturnRows(sqlmock.NewRows(templateRowColumns).
			AddRow("tmpl-1", "branch-1", "year-1", "Semester 1", nil, now, nil, true, 3, now, now))

	tmpl, err := repo.FindByID(context.Background(), nil, "tmpl-1")
	require.NoError(t, err)
	assert.True(t, tmpl.IsActive)
	assert.Equal(t, 3, tmpl.Version)
	assert.Nil(t, tmpl.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryLockBranchYear(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM timetable_templates WHERE branch_id = $1 AND academic_year_id = $2 FOR UPDATE")).
		WithArgs("branch-1", "year-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tmpl-1").AddRow("tmpl-2"))

	ids, err := repo.LockBranchYear(context.Background(), nil, "branch-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmpl-1", "tmpl-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryActivate(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)
	tmpl := &models.TimetableTemplate{ID: "tmpl-2", BranchID: "branch-1", AcademicYearID: "year-1"}

	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE, version = version + 1, updated_at = $1")).
		WithArgs(sqlmock.AnyArg(), "branch-1", "year-1", "tmpl-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = TRUE, version = version + 1, updated_at = $1")).
		WithArgs(sqlmock.AnyArg(), "tmpl-2", "branch-1", "year-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Activate(context.Background(), nil, tmpl))

	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE")).
		WithArgs(sqlmock.AnyArg(), "branch-1", "year-1", "tmpl-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = TRUE")).
		WithArgs(sqlmock.AnyArg(), "tmpl-2", "branch-1", "year-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Activate(context.Background(), nil, tmpl), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryDeactivateIsIdempotent(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_templates SET is_active = FALSE")).
		WithArgs(sqlmock.AnyArg(), "tmpl-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Deactivate(context.Background(), nil, "tmpl-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_templates")).
		WithArgs("Renamed", nil, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), "tmpl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tmpl := &models.TimetableTemplate{ID: "tmpl-1", Name: "Renamed", Version: 2}
	require.NoError(t, repo.Update(context.Background(), nil, tmpl))
	assert.Equal(t, 3, tmpl.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_templates WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "missing"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableTemplateRepositoryHasGeneratedLessons(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableTemplateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM lesson_instances WHERE source_template_id = $1)")).
		WithArgs("tmpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasGeneratedLessons(context.Background(), nil, "tmpl-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
