package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type activeTemplatesStub []models.TimetableTemplate

func (s activeTemplatesStub) ListActive(context.Context) ([]models.TimetableTemplate, error) {
	return s, nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type periodGeneratorStub struct {
	calls []GenerationRequest
	err   error
}

func (g *periodGeneratorStub) GenerateForPeriod(_ context.Context, templateID string, start, end time.Time, skipExisting bool) (*models.GenerationResult, error) {
	g.calls = append(g.calls, GenerationRequest{TemplateID: templateID, StartDate: start, EndDate: end, SkipExisting: skipExisting})
	if g.err != nil {
		return nil, g.err
	}
	return &models.GenerationResult{TemplateID: templateID, StartDate: start, EndDate: end}, nil
}

func TestLessonGenerationJobRunHorizonClipsWindows(t *testing.T) {
	endsSoon := mustDate(t, "2026-01-10")
	templates := activeTemplatesStub{
		{ID: "open", EffectiveFrom: mustDate(t, "2025-07-14")},
		{ID: "starts-later", EffectiveFrom: mustDate(t, "2026-01-20")},
		{ID: "ends-soon", EffectiveFrom: mustDate(t, "2025-07-14"), EffectiveUntil: &endsSoon},
		{ID: "expired", EffectiveFrom: mustDate(t, "2025-07-14"), EffectiveUntil: ptrTime(mustDate(t, "2026-01-01"))},
	}
	queue := &recordingQueue{}
	job := NewLessonGenerationJob(templates, &periodGeneratorStub{}, 28, nil)
	job.now = func() time.Time { return time.Date(2026, time.January, 4, 15, 0, 0, 0, time.UTC) }
	job.AttachQueue(queue)

	queued, err := job.RunHorizon(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	require.Len(t, queue.jobs, 3)

	got := map[string]GenerationRequest{}
	for _, j := range queue.jobs {
		assert.Equal(t, JobTypeGenerateLessons, j.Type)
		assert.NotEmpty(t, j.ID)
		req := j.Payload.(GenerationRequest)
		assert.True(t, req.SkipExisting)
		got[req.TemplateID] = req
	}
	assert.Equal(t, mustDate(t, "2026-01-05"), got["open"].StartDate)
	assert.Equal(t, mustDate(t, "2026-02-01"), got["open"].EndDate)
	assert.Equal(t, mustDate(t, "2026-01-20"), got["starts-later"].StartDate)
	assert.Equal(t, mustDate(t, "2026-01-10"), got["ends-soon"].EndDate)
	assert.NotContains(t, got, "expired")
}

func TestLessonGenerationJobRequiresQueue(t *testing.T) {
	job := NewLessonGenerationJob(activeTemplatesStub{}, &periodGeneratorStub{}, 0, nil)
	_, err := job.RunHorizon(context.Background())
	assert.Error(t, err)
	_, err = job.Enqueue(GenerationRequest{TemplateID: "tmpl-1"})
	assert.Error(t, err)
}

func TestLessonGenerationJobHandle(t *testing.T) {
	gen := &periodGeneratorStub{}
	job := NewLessonGenerationJob(activeTemplatesStub{}, gen, 28, nil)
	req := GenerationRequest{TemplateID: "tmpl-1", StartDate: mustDate(t, "2026-01-05"), EndDate: mustDate(t, "2026-01-11"), SkipExisting: true}

	require.NoError(t, job.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: req}))
	require.Len(t, gen.calls, 1)
	assert.Equal(t, req, gen.calls[0])

	gen.err = errors.New("boom")
	assert.Error(t, job.Handle(context.Background(), jobs.Job{ID: "job-2", Payload: req}))
	assert.Equal(t, uint64(1), job.Failures())

	err := job.Handle(context.Background(), jobs.Job{ID: "job-3", Payload: "bad"})
	assert.True(t, jobs.IsPermanent(err))
}

type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *countingGenerator) GenerateForPeriod(context.Context, string, time.Time, time.Time, bool) (*models.GenerationResult, error) {
	g.calls.Add(1)
	return nil, g.err
}

func TestLessonGenerationJobDoesNotRetryCallerErrors(t *testing.T) {
	for name, genErr := range map[string]error{
		"inactive template": validationError("timetable template tmpl-1 is not active"),
		"missing template":  notFoundError("timetable template"),
	} {
		t.Run(name, func(t *testing.T) {
			gen := &countingGenerator{err: genErr}
			job := NewLessonGenerationJob(activeTemplatesStub{}, gen, 28, nil)
			queue := jobs.NewQueue("lesson-generation", job.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
			job.AttachQueue(queue)
			queue.Start(context.Background())
			defer queue.Stop()

			_, err := job.Enqueue(GenerationRequest{TemplateID: "tmpl-1", StartDate: mustDate(t, "2026-01-05"), EndDate: mustDate(t, "2026-01-05")})
			require.NoError(t, err)

			require.Eventually(t, func() bool { return queue.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
			time.Sleep(30 * time.Millisecond)
			assert.EqualValues(t, 1, gen.calls.Load())
			assert.Equal(t, uint64(1), job.Failures())
		})
	}
}

func TestLessonGenerationJobRetriesInternalErrors(t *testing.T) {
	gen := &countingGenerator{err: internalError(errors.New("connection reset"), "failed to insert lesson")}
	job := NewLessonGenerationJob(activeTemplatesStub{}, gen, 28, nil)
	queue := jobs.NewQueue("lesson-generation", job.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	job.AttachQueue(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	_, err := job.Enqueue(GenerationRequest{TemplateID: "tmpl-1", StartDate: mustDate(t, "2026-01-05"), EndDate: mustDate(t, "2026-01-05")})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return queue.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, gen.calls.Load())
}

func TestLessonGenerationJobThroughQueue(t *testing.T) {
	gen := &periodGeneratorStub{}
	job := NewLessonGenerationJob(activeTemplatesStub{}, gen, 28, nil)
	queue := jobs.NewQueue("lesson-generation", job.Handle, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	job.AttachQueue(queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	id, err := job.Enqueue(GenerationRequest{TemplateID: "tmpl-1", StartDate: mustDate(t, "2026-01-05"), EndDate: mustDate(t, "2026-01-05")})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool { return queue.Stats().Processed == 1 }, time.Second, 10*time.Millisecond)
	queue.Stop()
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestLessonGenerationJobEnqueueReportsFullQueue(t *testing.T) {
	job := NewLessonGenerationJob(activeTemplatesStub{}, &periodGeneratorStub{}, 28, nil)
	job.AttachQueue(&recordingQueue{err: fmt.Errorf("queue lesson-generation: %w", jobs.ErrQueueFull)})

	_, err := job.Enqueue(GenerationRequest{TemplateID: "tmpl-1"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	job.AttachQueue(&recordingQueue{err: errors.New("queue lesson-generation not started")})
	_, err = job.Enqueue(GenerationRequest{TemplateID: "tmpl-1"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
