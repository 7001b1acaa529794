package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestCalendarPolicyRepositoryFindByBranch(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewCalendarPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT branch_id, working_days, holidays::text[] AS holidays, updated_at FROM branch_calendar_policies WHERE branch_id = $1")).
		WithArgs("branch-1").
		WillReturnRows(sqlmock.NewRows([]string{"branch_id", "working_days", "holidays", "updated_at"}).
			AddRow("branch-1", "{0,1,2,3,4}", "{2026-01-05,2026-01-06}", time.Now()))

	policy, err := repo.FindByBranch(context.Background(), "branch-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, policy.WorkingDays)
	require.Len(t, policy.Holidays, 2)
	assert.True(t, policy.IsHoliday(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarPolicyRepositoryFindByBranchMissing(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewCalendarPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM branch_calendar_policies")).
		WithArgs("branch-x").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByBranch(context.Background(), "branch-x")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarPolicyRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewCalendarPolicyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (branch_id) DO UPDATE")).
		WithArgs("branch-1", "{0,1,2,3,4}", `{"2026-01-05"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	policy := &models.CalendarPolicy{
		BranchID:    "branch-1",
		WorkingDays: []int{0, 1, 2, 3, 4},
		Holidays:    []time.Time{time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, repo.Upsert(context.Background(), policy))
	assert.False(t, policy.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
