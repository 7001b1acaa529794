package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// CalendarPolicyRepository reads and stores branch working days and holidays.
type CalendarPolicyRepository struct {
	db *sqlx.DB
}

// NewCalendarPolicyRepository constructs repository.
func NewCalendarPolicyRepository(db *sqlx.DB) *CalendarPolicyRepository {
	return &CalendarPolicyRepository{db: db}
}

type calendarPolicyRow struct {
	BranchID    string         `db:"branch_id"`
	WorkingDays pq.Int64Array  `db:"working_days"`
	Holidays    pq.StringArray `db:"holidays"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row calendarPolicyRow) toModel() (*models.CalendarPolicy, error) {
	policy := &models.CalendarPolicy{
		BranchID:    row.BranchID,
		WorkingDays: make([]int, 0, len(row.WorkingDays)),
		Holidays:    make([]time.Time, 0, len(row.Holidays)),
		UpdatedAt:   row.UpdatedAt,
	}
	for _, d := range row.WorkingDays {
		policy.WorkingDays = append(policy.WorkingDays, int(d))
	}
	for _, raw := range row.Holidays {
		day, err := models.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("decode holiday for branch %s: %w", row.BranchID, err)
		}
		policy.Holidays = append(policy.Holidays, day)
	}
	return policy, nil
}

// FindByBranch loads the calendar policy of a branch.
func (r *CalendarPolicyRepository) FindByBranch(ctx context.Context, branchID string) (*models.CalendarPolicy, error) {
	const query = `SELECT branch_id, working_days, holidays::text[] AS holidays, updated_at FROM branch_calendar_policies WHERE branch_id = $1`
	var row calendarPolicyRow
	if err := r.db.GetContext(ctx, &row, query, branchID); err != nil {
		return nil, err
	}
	return row.toModel()
}

// Upsert stores the policy, replacing working days and holidays.
func (r *CalendarPolicyRepository) Upsert(ctx context.Context, policy *models.CalendarPolicy) error {
	workingDays := make([]int64, 0, len(policy.WorkingDays))
	for _, d := range policy.WorkingDays {
		workingDays = append(workingDays, int64(d))
	}
	holidays := make([]string, 0, len(policy.Holidays))
	for _, h := range policy.Holidays {
		holidays = append(holidays, h.Format(models.DateLayout))
	}
	policy.UpdatedAt = time.Now().UTC()

	const query = `
INSERT INTO branch_calendar_policies (branch_id, working_days, holidays, updated_at)
VALUES ($1, $2, $3::date[], $4)
ON CONFLICT (branch_id) DO UPDATE
SET working_days = EXCLUDED.working_days, holidays = EXCLUDED.holidays, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, policy.BranchID, pq.Array(workingDays), pq.Array(holidays), policy.UpdatedAt); err != nil {
		return fmt.Errorf("upsert calendar policy: %w", err)
	}
	return nil
}
