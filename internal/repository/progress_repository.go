package repository

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithContext(ctx context.Context) *ProgressRepository {
	return &ProgressRepository{DB: r.DB.WithContext(ctx)}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// CreateIfMissing inserts p unless the (user, exam) pair already has an entry.
// It reports whether a row was written.
func (r *ProgressRepository) CreateIfMissing(p *model.ExamProgress) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ProgressRepository) Find(userID, examID uint) (*model.ExamProgress, error) {
	var p model.ExamProgress
	err := r.DB.Where("user_id = ? AND exam_id = ?", userID, examID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrProgressNotFound
	}
	return &p, err
}

func (r *ProgressRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ExamProgress{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// ListByUser returns the entries of active exams ordered by (group, order).
func (r *ProgressRepository) ListByUser(userID uint) ([]model.ExamProgress, error) {
	var entries []model.ExamProgress
	err := r.DB.Preload("Exam").Where("user_id = ?", userID).Find(&entries).Error
	if err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Exam != nil && e.Exam.IsActive {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Exam.ExamGroup != out[j].Exam.ExamGroup {
			return out[i].Exam.ExamGroup < out[j].Exam.ExamGroup
		}
		return out[i].Exam.Order < out[j].Exam.Order
	})
	return out, nil
}

// MarkStarted moves an unlocked entry to in_progress.
func (r *ProgressRepository) MarkStarted(id uint, at time.Time) (bool, error) {
	res := r.DB.Model(&model.ExamProgress{}).
		Where("id = ? AND status = ?", id, model.StatusUnlocked).
		Updates(map[string]interface{}{
			"status":     model.StatusInProgress,
			"started_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// CompletionResult is the graded outcome written by ClaimCompletion.
type CompletionResult struct {
	Score            int
	Percentage       float64
	TotalQuestions   int
	Answers          []model.AnswerRecord
	WrongQuestionIDs []uint
	CompletedAt      time.Time
}

// ClaimCompletion completes the entry only if it is still submittable. The
// conditional update is the guard against concurrent submissions: exactly
// one caller sees true.
func (r *ProgressRepository) ClaimCompletion(id uint, result CompletionResult) (bool, error) {
	res := r.DB.Model(&model.ExamProgress{}).
		Where("id = ? AND status IN ?", id, []model.ProgressStatus{model.StatusUnlocked, model.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":             model.StatusCompleted,
			"score":              result.Score,
			"percentage":         result.Percentage,
			"total_questions":    result.TotalQuestions,
			"answers":            datatypes.NewJSONSlice(result.Answers),
			"wrong_question_ids": datatypes.NewJSONSlice(result.WrongQuestionIDs),
			"completed_at":       result.CompletedAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ProgressRepository) LinkReviewExam(id uint, reviewExamID string) error {
	return r.DB.Model(&model.ExamProgress{}).Where("id = ?", id).Update("review_exam_id", reviewExamID).Error
}

// Reset clears every attempt field and leaves the entry unlocked.
func (r *ProgressRepository) Reset(id uint) error {
	return r.DB.Model(&model.ExamProgress{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":             model.StatusUnlocked,
		"score":              nil,
		"percentage":         nil,
		"total_questions":    0,
		"answers":            datatypes.NewJSONSlice([]model.AnswerRecord{}),
		"wrong_question_ids": datatypes.NewJSONSlice([]uint{}),
		"review_exam_id":     nil,
		"started_at":         nil,
		"completed_at":       nil,
	}).Error
}

// Unlock flips a locked entry to unlocked and reports whether it did.
func (r *ProgressRepository) Unlock(userID, examID uint) (bool, error) {
	res := r.DB.Model(&model.ExamProgress{}).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, model.StatusLocked).
		Update("status", model.StatusUnlocked)
	return res.RowsAffected > 0, res.Error
}

// SetStatusForExams moves the student's entries for examIDs from any of the
// from statuses to to.
func (r *ProgressRepository) SetStatusForExams(userID uint, examIDs []uint, from []model.ProgressStatus, to model.ProgressStatus) (int64, error) {
	res := r.DB.Model(&model.ExamProgress{}).
		Where("user_id = ? AND exam_id IN ? AND status IN ?", userID, examIDs, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *ProgressRepository) SetStatusForGroup(userID uint, group int, from []model.ProgressStatus, to model.ProgressStatus) (int64, error) {
	res := r.DB.Model(&model.ExamProgress{}).
		Where("user_id = ? AND exam_group = ? AND status IN ?", userID, group, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// SyncGroup rewrites the denormalised group copy after an exam moved groups.
func (r *ProgressRepository) SyncGroup(examID uint, group int) error {
	return r.DB.Model(&model.ExamProgress{}).Where("exam_id = ?", examID).Update("exam_group", group).Error
}

type CompletedTotals struct {
	Score     int
	Questions int
	Completed int
}

func (r *ProgressRepository) CompletedTotals(userID uint) (CompletedTotals, error) {
	var row struct {
		Score     int
		Questions int
		Completed int
	}
	err := r.DB.Model(&model.ExamProgress{}).
		Select("COALESCE(SUM(score), 0) AS score, COALESCE(SUM(total_questions), 0) AS questions, COUNT(*) AS completed").
		Where("user_id = ? AND status = ?", userID, model.StatusCompleted).
		Scan(&row).Error
	return CompletedTotals(row), err
}

func (r *ProgressRepository) DeleteByUser(userID uint) error {
	return r.DB.Where("user_id = ?", userID).Delete(&model.ExamProgress{}).Error
}
