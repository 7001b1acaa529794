package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type slotRepoStub struct {
	slots []models.TimetableSlot
	seq   int
}

func (s *slotRepoStub) ListByTemplate(_ context.Context, _ sqlx.ExtContext, templateID string) ([]models.TimetableSlot, error) {
	var out []models.TimetableSlot
	for _, slot := range s.slots {
		if slot.TemplateID == templateID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *slotRepoStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.TimetableSlot, error) {
	for _, slot := range s.slots {
		if slot.ID == id {
			copy := slot
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *slotRepoStub) Create(_ context.Context, _ sqlx.ExtContext, slot *models.TimetableSlot) error {
	s.seq++
	if slot.ID == "" {
		slot.ID = fmt.Sprintf("slot-%d", s.seq)
	}
	s.slots = append(s.slots, *slot)
	return nil
}

func (s *slotRepoStub) Update(_ context.Context, _ sqlx.ExtContext, slot *models.TimetableSlot) error {
	for i := range s.slots {
		if s.slots[i].ID == slot.ID {
			s.slots[i] = *slot
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *slotRepoStub) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	for i := range s.slots {
		if s.slots[i].ID == id {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type slotTemplateStub struct {
	templates map[string]*models.TimetableTemplate
	locks     int
}

func (s *slotTemplateStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.TimetableTemplate, error) {
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tmpl, nil
}

func (s *slotTemplateStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimetableTemplate, error) {
	s.locks++
	return s.FindByID(ctx, exec, id)
}

type classSubjectStub map[string]models.ClassSubject

func (s classSubjectStub) FindByID(_ context.Context, id string) (*models.ClassSubject, error) {
	cs, ok := s[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &cs, nil
}

func (s classSubjectStub) FindByIDs(_ context.Context, ids []string) (map[string]models.ClassSubject, error) {
	out := make(map[string]models.ClassSubject, len(ids))
	for _, id := range ids {
		if cs, ok := s[id]; ok {
			out[id] = cs
		}
	}
	return out, nil
}

func newClassSubjects() classSubjectStub {
	return classSubjectStub{
		"cs-5a-math": {ID: "cs-5a-math", ClassID: "class-5a", SubjectID: "math", TeacherID: strPtr("teacher-j")},
		"cs-5b-phys": {ID: "cs-5b-phys", ClassID: "class-5b", SubjectID: "physics", TeacherID: strPtr("teacher-j")},
		"cs-5b-bio":  {ID: "cs-5b-bio", ClassID: "class-5b", SubjectID: "biology", TeacherID: strPtr("teacher-k")},
		"cs-6a-art":  {ID: "cs-6a-art", ClassID: "class-6a", SubjectID: "art"},
	}
}

type slotFixture struct {
	svc       *TimetableSlotService
	slots     *slotRepoStub
	templates *slotTemplateStub
	tx        txProvider
}

func newSlotFixture(t *testing.T) (slotFixture, func(begin, commit int)) {
	slots := &slotRepoStub{}
	templates := &slotTemplateStub{templates: map[string]*models.TimetableTemplate{
		"tmpl-1": {ID: "tmpl-1", BranchID: "branch-1", AcademicYearID: "ay-2526"},
	}}
	tx, mock := newTxProviderMock(t)
	svc := NewTimetableSlotService(slots, templates, newClassSubjects(), nil, tx, nil, NewMetricsService(), nil)
	expect := func(commits, rollbacks int) {
		for i := 0; i < commits; i++ {
			mock.ExpectBegin()
			mock.ExpectCommit()
		}
		for i := 0; i < rollbacks; i++ {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return slotFixture{svc: svc, slots: slots, templates: templates, tx: tx}, expect
}

func slotRequest(cs string, day, lesson int, start, end string, room *string) dto.TimetableSlotRequest {
	return dto.TimetableSlotRequest{
		ClassSubjectID: cs,
		DayOfWeek:      &day,
		LessonNumber:   lesson,
		StartTime:      start,
		EndTime:        end,
		RoomID:         room,
	}
}

func TestTimetableSlotServiceAddSlot(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 0)

	slot, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", strPtr("101")))
	require.NoError(t, err)
	assert.Equal(t, "slot-1", slot.ID)
	assert.Equal(t, "class-5a", slot.ClassID)
	assert.Equal(t, models.NewClockTime(8, 0), slot.StartTime)
	assert.Equal(t, 1, fx.templates.locks)
}

func TestTimetableSlotServiceRejectsTeacherDoubleBooking(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 1)

	_, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", nil))
	require.NoError(t, err)

	_, err = fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5b-phys", 0, 1, "08:30", "09:15", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrScheduleConflict))

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflictErr.Conflicts[0].Type)
	assert.Equal(t, "slot-1", conflictErr.Conflicts[0].SlotID)

	details, ok := appErrors.FromError(err).Details.([]models.SlotConflict)
	require.True(t, ok)
	assert.Len(t, details, 1)
	assert.Len(t, fx.slots.slots, 1)
}

func TestTimetableSlotServiceAcceptsBackToBackInSameRoom(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(2, 0)

	_, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", strPtr("101")))
	require.NoError(t, err)
	_, err = fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5b-phys", 0, 2, "08:45", "09:30", strPtr("101")))
	require.NoError(t, err)
	assert.Len(t, fx.slots.slots, 2)
}

func TestTimetableSlotServiceRejectsDuplicatePosition(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 1)

	_, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5b-phys", 1, 3, "10:00", "10:45", nil))
	require.NoError(t, err)
	_, err = fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5b-bio", 1, 3, "11:00", "11:45", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTimetableSlotServiceInputValidation(t *testing.T) {
	cases := []struct {
		name string
		req  dto.TimetableSlotRequest
		want *appErrors.Error
	}{
		{"inverted times", slotRequest("cs-5a-math", 0, 1, "09:00", "08:00", nil), appErrors.ErrValidation},
		{"equal times", slotRequest("cs-5a-math", 0, 1, "09:00", "09:00", nil), appErrors.ErrValidation},
		{"bad clock", slotRequest("cs-5a-math", 0, 1, "25:00", "26:00", nil), appErrors.ErrValidation},
		{"lesson zero", slotRequest("cs-5a-math", 0, 0, "08:00", "08:45", nil), appErrors.ErrValidation},
		{"lesson sixteen", slotRequest("cs-5a-math", 0, 16, "08:00", "08:45", nil), appErrors.ErrValidation},
		{"day seven", slotRequest("cs-5a-math", 7, 1, "08:00", "08:45", nil), appErrors.ErrValidation},
		{"unknown class subject", slotRequest("cs-x", 0, 1, "08:00", "08:45", nil), appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx, _ := newSlotFixture(t)
			_, err := fx.svc.AddSlot(context.Background(), "tmpl-1", tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestTimetableSlotServiceUnknownTemplate(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(0, 1)

	_, err := fx.svc.AddSlot(context.Background(), "tmpl-x", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableSlotServiceUpdateSlotIgnoresItself(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(2, 0)

	slot, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", strPtr("101")))
	require.NoError(t, err)

	updated, err := fx.svc.UpdateSlot(context.Background(), slot.ID, slotRequest("cs-5a-math", 0, 1, "08:15", "09:00", strPtr("101")))
	require.NoError(t, err)
	assert.Equal(t, slot.ID, updated.ID)
	assert.Equal(t, models.NewClockTime(8, 15), fx.slots.slots[0].StartTime)
}

func TestTimetableSlotServiceCheckSlotDryRun(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 0)

	_, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", strPtr("101")))
	require.NoError(t, err)

	conflicts, err := fx.svc.CheckSlot(context.Background(), "tmpl-1", slotRequest("cs-6a-art", 0, 1, "08:30", "09:15", strPtr("101")))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictRoom, conflicts[0].Type)

	conflicts, err = fx.svc.CheckSlot(context.Background(), "tmpl-1", slotRequest("cs-6a-art", 0, 1, "08:30", "09:15", strPtr("102")))
	require.NoError(t, err)
	assert.NotNil(t, conflicts)
	assert.Empty(t, conflicts)
	assert.Len(t, fx.slots.slots, 1)
}

func TestTimetableSlotServiceBulkAddSlots(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 0)

	created, err := fx.svc.BulkAddSlots(context.Background(), "tmpl-1", dto.BulkTimetableSlotRequest{Slots: []dto.TimetableSlotRequest{
		slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", strPtr("101")),
		slotRequest("cs-5b-phys", 0, 2, "08:45", "09:30", strPtr("101")),
		slotRequest("cs-5b-bio", 0, 1, "08:00", "08:45", strPtr("102")),
	}})
	require.NoError(t, err)
	assert.Len(t, created, 3)
	assert.Len(t, fx.slots.slots, 3)
}

func TestTimetableSlotServiceBulkAddSlotsRejectsIntraBatchConflict(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(0, 1)

	_, err := fx.svc.BulkAddSlots(context.Background(), "tmpl-1", dto.BulkTimetableSlotRequest{Slots: []dto.TimetableSlotRequest{
		slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", nil),
		slotRequest("cs-5b-phys", 0, 1, "08:00", "08:45", nil),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrScheduleConflict))

	problems, ok := appErrors.FromError(err).Details.([]dto.BulkSlotProblem)
	require.True(t, ok)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].Index)
	assert.Empty(t, fx.slots.slots)

	conflicts, ok := problems[0].Conflicts.([]models.SlotConflict)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Type)
	assert.NotEmpty(t, conflicts[0].SlotID)
	assert.Equal(t, "teacher double-booked with item 0 of this import", conflicts[0].Message)
}

func TestTimetableSlotServiceBulkAddSlotsDuplicatePositionIsValidationError(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(0, 1)

	_, err := fx.svc.BulkAddSlots(context.Background(), "tmpl-1", dto.BulkTimetableSlotRequest{Slots: []dto.TimetableSlotRequest{
		slotRequest("cs-5b-phys", 1, 3, "10:00", "10:45", nil),
		slotRequest("cs-5b-bio", 1, 3, "11:00", "11:45", nil),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.False(t, errors.Is(err, appErrors.ErrScheduleConflict))

	problems, ok := appErrors.FromError(err).Details.([]dto.BulkSlotProblem)
	require.True(t, ok)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].Index)
	assert.NotContains(t, problems[0].Message, "(slot )")
	assert.Nil(t, problems[0].Conflicts)
	assert.Empty(t, fx.slots.slots)
}

func TestTimetableSlotServiceBulkAddSlotsKeepsPreassignedIDs(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 0)

	created, err := fx.svc.BulkAddSlots(context.Background(), "tmpl-1", dto.BulkTimetableSlotRequest{Slots: []dto.TimetableSlotRequest{
		slotRequest("cs-5a-math", 2, 1, "08:00", "08:45", nil),
	}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Len(t, fx.slots.slots, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, created[0].ID, fx.slots.slots[0].ID)
}

func TestTimetableSlotServiceRemoveSlot(t *testing.T) {
	fx, expect := newSlotFixture(t)
	expect(1, 0)

	slot, err := fx.svc.AddSlot(context.Background(), "tmpl-1", slotRequest("cs-5a-math", 0, 1, "08:00", "08:45", nil))
	require.NoError(t, err)
	require.NoError(t, fx.svc.RemoveSlot(context.Background(), slot.ID))
	assert.True(t, errors.Is(fx.svc.RemoveSlot(context.Background(), slot.ID), appErrors.ErrNotFound))
}
