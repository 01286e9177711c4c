package repository

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type FanoutJobRepository struct {
	DB *gorm.DB
}

func NewFanoutJobRepository(db *gorm.DB) *FanoutJobRepository {
	return &FanoutJobRepository{DB: db}
}

func (r *FanoutJobRepository) WithContext(ctx context.Context) *FanoutJobRepository {
	return &FanoutJobRepository{DB: r.DB.WithContext(ctx)}
}

func (r *FanoutJobRepository) WithTx(tx *gorm.DB) *FanoutJobRepository {
	return &FanoutJobRepository{DB: tx}
}

func (r *FanoutJobRepository) Create(job *model.FanoutJob) error {
	return r.DB.Create(job).Error
}

func (r *FanoutJobRepository) FindByID(id uint) (*model.FanoutJob, error) {
	var job model.FanoutJob
	err := r.DB.First(&job, id).Error
	return &job, err
}

func (r *FanoutJobRepository) ListByExam(examID uint) ([]model.FanoutJob, error) {
	var jobs []model.FanoutJob
	err := r.DB.Where("exam_id = ?", examID).Order("id asc").Find(&jobs).Error
	return jobs, err
}

// ClaimNext marks the oldest pending job that is due at now as running and
// returns it, or nil when nothing is due. Losing a race for a row moves on to
// the next one.
func (r *FanoutJobRepository) ClaimNext(now time.Time) (*model.FanoutJob, error) {
	for {
		var job model.FanoutJob
		err := r.DB.
			Where("status = ? AND (next_run_at IS NULL OR next_run_at <= ?)", model.FanoutPending, now).
			Order("id asc").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := r.DB.Model(&model.FanoutJob{}).
			Where("id = ? AND status = ?", job.ID, model.FanoutPending).
			Update("status", model.FanoutRunning)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = model.FanoutRunning
			return &job, nil
		}
	}
}

// Checkpoint persists the cursor after a finished batch.
func (r *FanoutJobRepository) Checkpoint(job *model.FanoutJob) error {
	return r.DB.Model(&model.FanoutJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"last_user_id": job.LastUserID,
		"processed":    job.Processed,
		"created":      job.Created,
	}).Error
}

func (r *FanoutJobRepository) MarkDone(job *model.FanoutJob) error {
	job.Status = model.FanoutDone
	return r.DB.Model(&model.FanoutJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":      model.FanoutDone,
		"last_error":  "",
		"next_run_at": nil,
	}).Error
}

// MarkRetry records a failed run. The job goes back to pending, not claimable
// before retryAt, until it has used maxAttempts runs; then it is marked failed.
func (r *FanoutJobRepository) MarkRetry(job *model.FanoutJob, cause error, maxAttempts int, retryAt time.Time) error {
	job.Attempts++
	job.LastError = cause.Error()
	job.Status = model.FanoutPending
	job.NextRunAt = &retryAt
	if job.Attempts >= maxAttempts {
		job.Status = model.FanoutFailed
		job.NextRunAt = nil
	}
	return r.DB.Model(&model.FanoutJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":      job.Status,
		"attempts":    job.Attempts,
		"last_error":  job.LastError,
		"next_run_at": job.NextRunAt,
	}).Error
}

// RequeueRunning puts jobs left running by a previous process back in the
// queue. Their cursor makes the rerun resume where it stopped.
func (r *FanoutJobRepository) RequeueRunning() (int64, error) {
	res := r.DB.Model(&model.FanoutJob{}).
		Where("status = ?", model.FanoutRunning).
		Update("status", model.FanoutPending)
	return res.RowsAffected, res.Error
}
