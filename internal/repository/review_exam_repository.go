package repository

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewExamRepository struct {
	DB *gorm.DB
}

func NewReviewExamRepository(db *gorm.DB) *ReviewExamRepository {
	return &ReviewExamRepository{DB: db}
}

func (r *ReviewExamRepository) WithContext(ctx context.Context) *ReviewExamRepository {
	return &ReviewExamRepository{DB: r.DB.WithContext(ctx)}
}

func (r *ReviewExamRepository) WithTx(tx *gorm.DB) *ReviewExamRepository {
	return &ReviewExamRepository{DB: tx}
}

func (r *ReviewExamRepository) Create(review *model.ReviewExam) error {
	return r.DB.Create(review).Error
}

func (r *ReviewExamRepository) FindByID(id string) (*model.ReviewExam, error) {
	var review model.ReviewExam
	err := r.DB.First(&review, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrReviewExamNotFound
	}
	return &review, err
}

// LockForAttempt takes a row lock on the review exam so attempt numbers are
// handed out one at a time. Call it inside a transaction.
func (r *ReviewExamRepository) LockForAttempt(id string) error {
	var review model.ReviewExam
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&review, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrReviewExamNotFound
	}
	return err
}

func (r *ReviewExamRepository) ListAttempts(reviewID string) ([]model.ReviewAttempt, error) {
	var attempts []model.ReviewAttempt
	err := r.DB.Where("review_exam_id = ?", reviewID).Order("attempt_number asc").Find(&attempts).Error
	return attempts, err
}

func (r *ReviewExamRepository) CountAttempts(reviewID string) (int, error) {
	var count int64
	err := r.DB.Model(&model.ReviewAttempt{}).Where("review_exam_id = ?", reviewID).Count(&count).Error
	return int(count), err
}

func (r *ReviewExamRepository) CreateAttempt(attempt *model.ReviewAttempt) error {
	return r.DB.Create(attempt).Error
}

// RaiseBest stores (score, percentage) as the new best only if percentage
// strictly beats the stored one. It reports whether the watermark moved.
func (r *ReviewExamRepository) RaiseBest(reviewID string, score int, percentage float64) (bool, error) {
	res := r.DB.Model(&model.ReviewExam{}).
		Where("id = ? AND (best_percentage IS NULL OR best_percentage < ?)", reviewID, percentage).
		Updates(map[string]interface{}{
			"best_score":      score,
			"best_percentage": percentage,
		})
	return res.RowsAffected > 0, res.Error
}

// Delete removes the review exam and its attempts.
func (r *ReviewExamRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_exam_id = ?", id).Delete(&model.ReviewAttempt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ReviewExam{}, "id = ?", id).Error
	})
}

func (r *ReviewExamRepository) DeleteByUser(userID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.ReviewExam{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("review_exam_id IN (?)", sub).Delete(&model.ReviewAttempt{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&model.ReviewExam{}).Error
	})
}
