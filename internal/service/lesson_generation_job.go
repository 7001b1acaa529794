package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// JobTypeGenerateLessons identifies lesson generation jobs on the queue.
const JobTypeGenerateLessons = "generate_lessons"

type activeTemplateLister interface {
	ListActive(ctx context.Context) ([]models.TimetableTemplate, error)
}

type periodGenerator interface {
	GenerateForPeriod(ctx context.Context, templateID string, start, end time.Time, skipExisting bool) (*models.GenerationResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// GenerationRequest is the payload of a queued generation job.
type GenerationRequest struct {
	TemplateID   string
	StartDate    time.Time
	EndDate      time.Time
	SkipExisting bool
}

// LessonGenerationJob keeps generated lessons a fixed horizon ahead for every active template.
type LessonGenerationJob struct {
	templates   activeTemplateLister
	generator   periodGenerator
	queue       jobQueue
	horizonDays int
	logger      *zap.Logger
	now         func() time.Time

	failures atomic.Uint64
}

// NewLessonGenerationJob constructs the job. The queue is attached with AttachQueue once it exists,
// because the queue itself needs the job's Handle method.
func NewLessonGenerationJob(templates activeTemplateLister, generator periodGenerator, horizonDays int, logger *zap.Logger) *LessonGenerationJob {
	if horizonDays <= 0 {
		horizonDays = 28
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonGenerationJob{
		templates:   templates,
		generator:   generator,
		horizonDays: horizonDays,
		logger:      logger,
		now:         time.Now,
	}
}

// AttachQueue sets the queue used by RunHorizon and Enqueue.
func (j *LessonGenerationJob) AttachQueue(queue jobQueue) {
	j.queue = queue
}

// Failures reports how many queued generation attempts failed.
func (j *LessonGenerationJob) Failures() uint64 {
	return j.failures.Load()
}

// RunHorizon enqueues one generation per active template, from tomorrow through the horizon,
// clipped to each template's effective window. It returns the number of jobs queued.
func (j *LessonGenerationJob) RunHorizon(ctx context.Context) (int, error) {
	if j.queue == nil {
		return 0, fmt.Errorf("generation queue not attached")
	}
	templates, err := j.templates.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active templates: %w", err)
	}

	start := models.DateOf(j.now().UTC()).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, j.horizonDays-1)

	queued := 0
	for _, tmpl := range templates {
		from, until := start, end
		if tmpl.EffectiveFrom.After(from) {
			from = models.DateOf(tmpl.EffectiveFrom)
		}
		if tmpl.EffectiveUntil != nil && tmpl.EffectiveUntil.Before(until) {
			until = models.DateOf(*tmpl.EffectiveUntil)
		}
		if from.After(until) {
			continue
		}
		if _, err := j.Enqueue(GenerationRequest{TemplateID: tmpl.ID, StartDate: from, EndDate: until, SkipExisting: true}); err != nil {
			j.logger.Error("failed to enqueue horizon generation", zap.String("template_id", tmpl.ID), zap.Error(err))
			continue
		}
		queued++
	}
	j.logger.Info("horizon generation queued", zap.Int("templates", len(templates)), zap.Int("queued", queued),
		zap.String("start", start.Format(models.DateLayout)), zap.String("end", end.Format(models.DateLayout)))
	return queued, nil
}

// Enqueue hands a generation request to the worker queue and returns the job id.
func (j *LessonGenerationJob) Enqueue(req GenerationRequest) (string, error) {
	if j.queue == nil {
		return "", fmt.Errorf("generation queue not attached")
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeGenerateLessons, Payload: req}
	if err := j.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", conflictError("generation queue is full, retry later")
		}
		return "", internalError(err, "failed to queue lesson generation")
	}
	return job.ID, nil
}

// Handle is the queue handler for generation jobs.
func (j *LessonGenerationJob) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(GenerationRequest)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}
	result, err := j.generator.GenerateForPeriod(ctx, req.TemplateID, req.StartDate, req.EndDate, req.SkipExisting)
	if err != nil {
		j.failures.Add(1)
		j.logger.Warn("queued generation failed",
			zap.String("job_id", job.ID),
			zap.String("template_id", req.TemplateID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		if isPermanentGenerationError(err) {
			return jobs.Permanent(err)
		}
		return err
	}
	j.logger.Info("queued generation finished",
		zap.String("job_id", job.ID),
		zap.String("template_id", req.TemplateID),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", result.Skipped),
		zap.Int("collisions", len(result.Collisions)))
	return nil
}

// isPermanentGenerationError reports caller mistakes that a retry cannot fix.
func isPermanentGenerationError(err error) bool {
	return errors.Is(err, appErrors.ErrValidation) || errors.Is(err, appErrors.ErrNotFound)
}
