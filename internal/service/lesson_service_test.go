package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type lessonRepoStub struct {
	lessons    map[string]*models.LessonInstance
	placements []models.LessonPlacement
	listCalls  int
	inserted   []models.LessonInstance
	casLost    bool
	events     []string
	lockErr    error
}

func newLessonRepoStub() *lessonRepoStub {
	return &lessonRepoStub{lessons: map[string]*models.LessonInstance{}}
}

func (s *lessonRepoStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.LessonInstance, error) {
	l, ok := s.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *l
	return &copy, nil
}

func (s *lessonRepoStub) FindBySlot(_ context.Context, classSubjectID string, date time.Time, lessonNumber int) (*models.LessonInstance, error) {
	for _, l := range s.lessons {
		if l.ClassSubjectID == classSubjectID && l.Date.Equal(date) && l.LessonNumber == lessonNumber {
			copy := *l
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *lessonRepoStub) ListForClass(_ context.Context, filter models.LessonFilter) ([]models.LessonInstance, error) {
	s.listCalls++
	var out []models.LessonInstance
	for _, l := range s.lessons {
		if l.ClassID == filter.ClassID && !l.Date.Before(filter.From) && !l.Date.After(filter.To) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *lessonRepoStub) LockDate(_ context.Context, _ sqlx.ExtContext, date time.Time) error {
	s.events = append(s.events, "lock "+date.Format(models.DateLayout))
	return s.lockErr
}

func (s *lessonRepoStub) ListActiveWithTeachersOnDate(_ context.Context, _ sqlx.ExtContext, date time.Time) ([]models.LessonPlacement, error) {
	s.events = append(s.events, "list "+date.Format(models.DateLayout))
	var out []models.LessonPlacement
	for _, p := range s.placements {
		if p.Lesson.Date.Equal(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *lessonRepoStub) Insert(_ context.Context, _ sqlx.ExtContext, lesson *models.LessonInstance) error {
	lesson.ID = "manual-new"
	s.inserted = append(s.inserted, *lesson)
	return nil
}

func (s *lessonRepoStub) UpdateStatus(_ context.Context, _ sqlx.ExtContext, id string, from, to models.LessonStatus) error {
	l, ok := s.lessons[id]
	if !ok || s.casLost || l.Status != from {
		return sql.ErrNoRows
	}
	l.Status = to
	return nil
}

func seedLesson(repo *lessonRepoStub, id, classID string, date time.Time, number int, status models.LessonStatus) {
	repo.lessons[id] = &models.LessonInstance{
		ID:             id,
		ClassSubjectID: "cs-5a-math",
		ClassID:        classID,
		Date:           date,
		LessonNumber:   number,
		StartTime:      models.NewClockTime(7+number, 0),
		EndTime:        models.NewClockTime(7+number, 45),
		RoomID:         strPtr("101"),
		Status:         status,
	}
}

func newLessonServiceWithCache(t *testing.T, repo *lessonRepoStub) (*LessonService, *memoryCacheRepo) {
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	tx, mock := newTxProviderMock(t)
	mock.MatchExpectationsInOrder(true)
	svc := NewLessonService(repo, newClassSubjects(), nil, tx, LessonServiceConfig{Cache: cache, Metrics: metrics, MaxRangeDays: 62})
	return svc, cacheRepo
}

func TestLessonServiceUpdateStatusTransitions(t *testing.T) {
	repo := newLessonRepoStub()
	day := mustDate(t, "2026-01-05")
	seedLesson(repo, "l-1", "class-5a", day, 1, models.LessonStatusScheduled)
	svc := NewLessonService(repo, newClassSubjects(), nil, nil, LessonServiceConfig{})

	lesson, err := svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "held"})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusHeld, lesson.Status)

	lesson, err = svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, lesson.Status)

	_, err = svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "held"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "scheduled"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLessonServiceUpdateStatusLostRace(t *testing.T) {
	repo := newLessonRepoStub()
	seedLesson(repo, "l-1", "class-5a", mustDate(t, "2026-01-05"), 1, models.LessonStatusScheduled)
	repo.casLost = true
	svc := NewLessonService(repo, newClassSubjects(), nil, nil, LessonServiceConfig{})

	_, err := svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "held"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.UpdateStatus(context.Background(), "missing", dto.UpdateLessonStatusRequest{Status: "held"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestLessonServiceListForClassUsesCache(t *testing.T) {
	repo := newLessonRepoStub()
	day := mustDate(t, "2026-01-05")
	seedLesson(repo, "l-1", "class-5a", day, 1, models.LessonStatusScheduled)
	svc, cacheRepo := newLessonServiceWithCache(t, repo)
	query := dto.LessonRangeQuery{ClassID: "class-5a", From: "2026-01-05", To: "2026-01-11"}

	lessons, hit, err := svc.ListForClass(context.Background(), query)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, lessons, 1)
	assert.Contains(t, cacheRepo.entries, "lessons:class:class-5a:2026-01-05:2026-01-11")

	lessons, hit, err = svc.ListForClass(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, lessons, 1)
	assert.Equal(t, models.NewClockTime(8, 0), lessons[0].StartTime)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.UpdateStatus(context.Background(), "l-1", dto.UpdateLessonStatusRequest{Status: "held"})
	require.NoError(t, err)
	assert.Empty(t, cacheRepo.entries)
}

func TestLessonServiceRangeValidation(t *testing.T) {
	svc := NewLessonService(newLessonRepoStub(), newClassSubjects(), nil, nil, LessonServiceConfig{MaxRangeDays: 7})

	_, _, err := svc.ListForClass(context.Background(), dto.LessonRangeQuery{ClassID: "class-5a", From: "2026-01-10", To: "2026-01-05"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = svc.ListForClass(context.Background(), dto.LessonRangeQuery{ClassID: "class-5a", From: "2026-01-01", To: "2026-01-31"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = svc.ListForClass(context.Background(), dto.LessonRangeQuery{From: "2026-01-01", To: "2026-01-02"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLessonServiceWeeklySchedule(t *testing.T) {
	repo := newLessonRepoStub()
	seedLesson(repo, "mon", "class-5a", mustDate(t, "2026-01-05"), 1, models.LessonStatusScheduled)
	seedLesson(repo, "wed", "class-5a", mustDate(t, "2026-01-07"), 2, models.LessonStatusScheduled)
	seedLesson(repo, "next", "class-5a", mustDate(t, "2026-01-12"), 1, models.LessonStatusScheduled)
	svc := NewLessonService(repo, newClassSubjects(), nil, nil, LessonServiceConfig{})

	week, err := svc.WeeklySchedule(context.Background(), dto.WeeklyScheduleQuery{ClassID: "class-5a", WeekStart: "2026-01-08"})
	require.NoError(t, err)
	assert.Equal(t, mustDate(t, "2026-01-05"), week.WeekStart)
	require.Len(t, week.Days[0], 1)
	require.Len(t, week.Days[2], 1)
	assert.Equal(t, "wed", week.Days[2][0].ID)
	assert.Len(t, week.Days, 2)
}

func TestLessonServiceCreateManual(t *testing.T) {
	repo := newLessonRepoStub()
	svc, _ := newLessonServiceWithCache(t, repo)
	mock := svc.tx.(*txProviderMock).mock
	mock.ExpectBegin()
	mock.ExpectCommit()

	lesson, err := svc.CreateManual(context.Background(), dto.CreateLessonRequest{
		ClassSubjectID: "cs-5a-math",
		Date:           "2026-01-06",
		LessonNumber:   3,
		StartTime:      "09:30",
		EndTime:        "10:15",
	})
	require.NoError(t, err)
	assert.Equal(t, "manual-new", lesson.ID)
	assert.False(t, lesson.IsAutoGenerated)
	assert.Nil(t, lesson.SourceSlotID)
	assert.Equal(t, "class-5a", lesson.ClassID)
	assert.Equal(t, []string{"lock 2026-01-06", "list 2026-01-06"}, repo.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceCreateManualLockFailureRollsBack(t *testing.T) {
	repo := newLessonRepoStub()
	repo.lockErr = fmt.Errorf("lock lesson date: %w", sql.ErrConnDone)
	svc, _ := newLessonServiceWithCache(t, repo)
	mock := svc.tx.(*txProviderMock).mock
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.CreateManual(context.Background(), dto.CreateLessonRequest{
		ClassSubjectID: "cs-5a-math",
		Date:           "2026-01-06",
		LessonNumber:   3,
		StartTime:      "09:30",
		EndTime:        "10:15",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, []string{"lock 2026-01-06"}, repo.events)
	assert.Empty(t, repo.inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceCreateManualTeacherConflict(t *testing.T) {
	repo := newLessonRepoStub()
	day := mustDate(t, "2026-01-06")
	repo.placements = []models.LessonPlacement{{
		Lesson: models.LessonInstance{
			ID:        "l-5b",
			ClassID:   "class-5b",
			Date:      day,
			StartTime: models.NewClockTime(9, 0),
			EndTime:   models.NewClockTime(9, 45),
			Status:    models.LessonStatusScheduled,
		},
		TeacherID: strPtr("teacher-j"),
	}}
	svc, _ := newLessonServiceWithCache(t, repo)
	mock := svc.tx.(*txProviderMock).mock
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.CreateManual(context.Background(), dto.CreateLessonRequest{
		ClassSubjectID: "cs-5a-math",
		Date:           "2026-01-06",
		LessonNumber:   3,
		StartTime:      "09:30",
		EndTime:        "10:15",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrScheduleConflict))
	assert.Empty(t, repo.inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceExportClassCalendar(t *testing.T) {
	repo := newLessonRepoStub()
	seedLesson(repo, "l-1", "class-5a", mustDate(t, "2026-01-05"), 1, models.LessonStatusScheduled)
	seedLesson(repo, "l-2", "class-5a", mustDate(t, "2026-01-06"), 2, models.LessonStatusCancelled)
	svc := NewLessonService(repo, newClassSubjects(), nil, nil, LessonServiceConfig{})

	var buf bytes.Buffer
	err := svc.ExportClassCalendar(context.Background(), &buf, dto.LessonRangeQuery{ClassID: "class-5a", From: "2026-01-05", To: "2026-01-11"})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "l-1@sma-timetable")
	assert.Contains(t, out, "CANCELLED")
	assert.Contains(t, out, "LOCATION:101")
}
