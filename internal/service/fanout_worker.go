package service

import (
	"context"
	"errors"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/tracing"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FanoutWorker seeds progress entries for every student when an exam is
// created. Work is persisted as FanoutJob rows so a restart resumes from the
// job cursor, and entry creation skips existing pairs so reruns are harmless.
type FanoutWorker struct {
	JobRepo      *repository.FanoutJobRepository
	UserRepo     *repository.UserRepository
	ExamRepo     *repository.ExamRepository
	ProgressRepo *repository.ProgressRepository
	Cfg          config.FanoutConfig

	wake chan struct{}
}

func NewFanoutWorker(
	jobRepo *repository.FanoutJobRepository,
	userRepo *repository.UserRepository,
	examRepo *repository.ExamRepository,
	progressRepo *repository.ProgressRepository,
	cfg config.FanoutConfig,
) *FanoutWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = 10 * time.Minute
	}
	return &FanoutWorker{
		JobRepo:      jobRepo,
		UserRepo:     userRepo,
		ExamRepo:     examRepo,
		ProgressRepo: progressRepo,
		Cfg:          cfg,
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue stores a pending job for examID inside tx.
func (w *FanoutWorker) Enqueue(tx *gorm.DB, examID uint) (*model.FanoutJob, error) {
	job := &model.FanoutJob{ExamID: examID, Status: model.FanoutPending}
	if err := w.JobRepo.WithTx(tx).Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Wake nudges the run loop without waiting for the next tick.
func (w *FanoutWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *FanoutWorker) Run(ctx context.Context) {
	if n, err := w.JobRepo.WithContext(ctx).RequeueRunning(); err != nil {
		logger.Log.Error("Failed to requeue interrupted fan-out jobs", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Requeued interrupted fan-out jobs", zap.Int64("count", n))
	}

	ticker := time.NewTicker(w.Cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error("Fan-out pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Log.Info("Fan-out worker stopped")
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// ProcessPending runs due jobs until none is left and returns how many it
// claimed. A failing job is requeued behind a backoff, or failed once it is
// out of attempts; the pass moves on.
func (w *FanoutWorker) ProcessPending(ctx context.Context) (int, error) {
	claimed := 0
	for ctx.Err() == nil {
		job, err := w.JobRepo.WithContext(ctx).ClaimNext(time.Now())
		if err != nil {
			return claimed, err
		}
		if job == nil {
			return claimed, nil
		}
		claimed++

		if err := w.runJob(ctx, job); err != nil {
			retryAt := time.Now().Add(w.backoff(job.Attempts + 1))
			if markErr := w.JobRepo.WithContext(context.Background()).MarkRetry(job, err, w.Cfg.MaxAttempts, retryAt); markErr != nil {
				return claimed, markErr
			}
			if job.Status == model.FanoutFailed {
				monitoring.FanoutJobs.WithLabelValues("failed").Inc()
				logger.Log.Error("Fan-out job failed permanently",
					zap.Uint("jobId", job.ID),
					zap.Uint("examId", job.ExamID),
					zap.Int("attempts", job.Attempts),
					zap.Error(err),
				)
			} else {
				logger.Log.Warn("Fan-out job will be retried",
					zap.Uint("jobId", job.ID),
					zap.Int("attempts", job.Attempts),
					zap.Time("nextRunAt", retryAt),
					zap.Error(err),
				)
			}
		}
	}
	return claimed, ctx.Err()
}

// backoff doubles RetryBackoff for every failed attempt, capped at MaxBackoff.
func (w *FanoutWorker) backoff(attempt int) time.Duration {
	d := w.Cfg.RetryBackoff
	for i := 1; i < attempt && d < w.Cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > w.Cfg.MaxBackoff {
		d = w.Cfg.MaxBackoff
	}
	return d
}

func (w *FanoutWorker) runJob(ctx context.Context, job *model.FanoutJob) error {
	ctx, span := tracing.Tracer.Start(ctx, "FanoutWorker.runJob")
	defer span.End()
	span.SetAttributes(attribute.Int("exam.id", int(job.ExamID)))

	exam, err := w.ExamRepo.WithContext(ctx).FindByID(job.ExamID)
	if errors.Is(err, util.ErrExamNotFound) || (err == nil && !exam.IsActive) {
		// nothing to seed for an exam that is gone
		monitoring.FanoutJobs.WithLabelValues("skipped").Inc()
		return w.JobRepo.WithContext(ctx).MarkDone(job)
	}
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := w.UserRepo.WithContext(ctx).StudentIDsAfter(job.LastUserID, w.Cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list students after %d: %w", job.LastUserID, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			created, err := w.seedEntry(ctx, id, exam)
			if err != nil {
				return fmt.Errorf("seed entry for user %d: %w", id, err)
			}
			job.Processed++
			if created {
				job.Created++
				monitoring.FanoutEntriesCreated.Inc()
			}
			job.LastUserID = id
		}
		if err := w.JobRepo.WithContext(ctx).Checkpoint(job); err != nil {
			return err
		}
	}

	if err := w.JobRepo.WithContext(ctx).MarkDone(job); err != nil {
		return err
	}
	monitoring.FanoutJobs.WithLabelValues("done").Inc()
	logger.Log.Info("Fan-out job finished",
		zap.Uint("jobId", job.ID),
		zap.Uint("examId", job.ExamID),
		zap.Int("processed", job.Processed),
		zap.Int("created", job.Created),
	)
	return nil
}

// seedEntry writes the student's entry for exam unless one exists. Only the
// opening exam starts unlocked, and only for a student with no entries yet.
func (w *FanoutWorker) seedEntry(ctx context.Context, userID uint, exam *model.Exam) (bool, error) {
	progress := w.ProgressRepo.WithContext(ctx)
	status := model.StatusLocked
	if exam.IsFirst() {
		count, err := progress.CountByUser(userID)
		if err != nil {
			return false, err
		}
		if count == 0 {
			status = model.StatusUnlocked
		}
	}
	return progress.CreateIfMissing(&model.ExamProgress{
		UserID:    userID,
		ExamID:    exam.ID,
		ExamGroup: exam.ExamGroup,
		Status:    status,
	})
}
