package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/ical"
)

type calendarPolicyRepository interface {
	FindByBranch(ctx context.Context, branchID string) (*models.CalendarPolicy, error)
	Upsert(ctx context.Context, policy *models.CalendarPolicy) error
}

// CalendarPolicyService serves branch working days and holidays to the scheduling core.
type CalendarPolicyService struct {
	repo   calendarPolicyRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCalendarPolicyService constructs the service.
func NewCalendarPolicyService(repo calendarPolicyRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CalendarPolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarPolicyService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func calendarPolicyCacheKey(branchID string) string {
	return fmt.Sprintf("calendar-policy:%s", branchID)
}

// Get returns the policy of a branch.
func (s *CalendarPolicyService) Get(ctx context.Context, branchID string) (*models.CalendarPolicy, error) {
	key := calendarPolicyCacheKey(branchID)
	var cached models.CalendarPolicy
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	policy, err := s.repo.FindByBranch(ctx, branchID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("calendar policy for branch " + branchID)
		}
		return nil, internalError(err, "failed to load calendar policy")
	}
	if err := policy.Validate(); err != nil {
		return nil, internalError(err, "stored calendar policy is invalid")
	}
	_ = s.cache.Set(ctx, key, policy, s.ttl)
	return policy, nil
}

// ImportHolidays merges every date covered by the events of an iCalendar file into the branch holidays.
func (s *CalendarPolicyService) ImportHolidays(ctx context.Context, branchID string, r io.Reader) (parsed, added int, policy *models.CalendarPolicy, err error) {
	dates, err := ical.ParseDates(r)
	if err != nil {
		return 0, 0, nil, validationError("invalid calendar file: %v", err)
	}

	policy, err = s.repo.FindByBranch(ctx, branchID)
	if err != nil {
		if isNotFound(err) {
			return 0, 0, nil, notFoundError("calendar policy for branch " + branchID)
		}
		return 0, 0, nil, internalError(err, "failed to load calendar policy")
	}

	added = policy.MergeHolidays(dates)
	if added > 0 {
		if err := s.repo.Upsert(ctx, policy); err != nil {
			return 0, 0, nil, internalError(err, "failed to store calendar policy")
		}
		_ = s.cache.Delete(ctx, calendarPolicyCacheKey(branchID))
	}
	s.logger.Info("holidays imported", zap.String("branch_id", branchID), zap.Int("parsed", len(dates)), zap.Int("added", added))
	return len(dates), added, policy, nil
}
