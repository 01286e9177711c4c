package repository

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) WithContext(ctx context.Context) *ExamRepository {
	return &ExamRepository{DB: r.DB.WithContext(ctx)}
}

func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position asc, id asc")
}

// Create inserts the exam together with its questions.
func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindByID(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Preload("Questions", orderedQuestions).First(&exam, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return &exam, err
}

func (r *ExamRepository) FindActiveByID(id uint) (*model.Exam, error) {
	exam, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, util.ErrExamNotFound
	}
	return exam, nil
}

// FindActiveByGroupOrder returns nil, nil when no active exam sits at (group, order).
func (r *ExamRepository) FindActiveByGroupOrder(group, order int) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Where("exam_group = ? AND sort_order = ? AND is_active = ?", group, order, true).
		Order("id asc").
		First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) GroupOrderTaken(group, order int, excludeID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Exam{}).
		Where("exam_group = ? AND sort_order = ? AND is_active = ? AND id <> ?", group, order, true, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *ExamRepository) ListActive() ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Where("is_active = ?", true).
		Order("exam_group asc, sort_order asc").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) ListActiveByGroup(group int) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Where("is_active = ? AND exam_group = ?", true, group).
		Order("sort_order asc").
		Find(&exams).Error
	return exams, err
}

// Save writes the exam row only; questions go through SaveQuestions.
func (r *ExamRepository) Save(exam *model.Exam) error {
	return r.DB.Omit(clause.Associations).Save(exam).Error
}

// SaveQuestions makes the stored question list equal to questions: rows with a
// known id are updated, rows without id are created and leftovers are removed.
func (r *ExamRepository) SaveQuestions(examID uint, questions []model.Question) error {
	var existingIDs []uint
	if err := r.DB.Model(&model.Question{}).Where("exam_id = ?", examID).Pluck("id", &existingIDs).Error; err != nil {
		return err
	}
	existing := make(map[uint]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	keep := make([]uint, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		q.ExamID = examID
		q.Position = i + 1
		if q.ID != 0 && existing[q.ID] {
			err := r.DB.Model(&model.Question{}).
				Where("id = ?", q.ID).
				Updates(map[string]interface{}{
					"position":       q.Position,
					"image_url":      q.ImageURL,
					"correct_answer": q.CorrectAnswer,
					"explanation":    q.Explanation,
				}).Error
			if err != nil {
				return err
			}
			keep = append(keep, q.ID)
			continue
		}
		// ids from other exams are never adopted
		q.ID = 0
		if err := r.DB.Create(q).Error; err != nil {
			return err
		}
		keep = append(keep, q.ID)
	}

	del := r.DB.Where("exam_id = ?", examID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	return del.Delete(&model.Question{}).Error
}

func (r *ExamRepository) Deactivate(id uint) error {
	res := r.DB.Model(&model.Exam{}).Where("id = ? AND is_active = ?", id, true).Updates(map[string]interface{}{
		"is_active":   false,
		"active_slot": nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrExamNotFound
	}
	return nil
}

// RecordAttempt folds one graded attempt into the aggregate statistics in a
// single statement. average_score is assigned before attempt_count so both
// MySQL (left to right) and SQLite (old values) see the previous count.
func (r *ExamRepository) RecordAttempt(examID uint, percentage float64, passed bool) error {
	pass := 0
	if passed {
		pass = 1
	}
	return r.DB.Exec(
		"UPDATE exams SET average_score = (average_score * attempt_count + ?) / (attempt_count + 1), "+
			"attempt_count = attempt_count + 1, pass_count = pass_count + ? WHERE id = ?",
		percentage, pass, examID,
	).Error
}
