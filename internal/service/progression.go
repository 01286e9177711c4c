package service

import (
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
)

// ProgressionUnlocker opens the exam that follows a completed one.
type ProgressionUnlocker struct {
	ExamRepo     *repository.ExamRepository
	ProgressRepo *repository.ProgressRepository
}

func NewProgressionUnlocker(examRepo *repository.ExamRepository, progressRepo *repository.ProgressRepository) *ProgressionUnlocker {
	return &ProgressionUnlocker{ExamRepo: examRepo, ProgressRepo: progressRepo}
}

// NextExam is the active exam after current: the next order in the same
// group, else order 1 of the following group. Nil at the end of the curriculum.
func (u *ProgressionUnlocker) NextExam(tx *gorm.DB, current *model.Exam) (*model.Exam, error) {
	exams := u.ExamRepo.WithTx(tx)
	next, err := exams.FindActiveByGroupOrder(current.ExamGroup, current.Order+1)
	if err != nil || next != nil {
		return next, err
	}
	if current.ExamGroup >= model.MaxExamGroup {
		return nil, nil
	}
	return exams.FindActiveByGroupOrder(current.ExamGroup+1, model.FirstExamOrder)
}

// UnlockNext unlocks the successor of exam for the student. A missing entry
// is created unlocked. It returns the exam only when this call opened it; an
// entry that is already unlocked, started or completed yields nil.
func (u *ProgressionUnlocker) UnlockNext(tx *gorm.DB, userID uint, exam *model.Exam) (*model.Exam, error) {
	next, err := u.NextExam(tx, exam)
	if err != nil || next == nil {
		return nil, err
	}

	progress := u.ProgressRepo.WithTx(tx)
	opened, err := progress.Unlock(userID, next.ID)
	if err != nil {
		return nil, err
	}
	if opened {
		return next, nil
	}

	_, err = progress.Find(userID, next.ID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, util.ErrProgressNotFound) {
		return nil, err
	}

	created, err := progress.CreateIfMissing(&model.ExamProgress{
		UserID:    userID,
		ExamID:    next.ID,
		ExamGroup: next.ExamGroup,
		Status:    model.StatusUnlocked,
	})
	if err != nil {
		return nil, err
	}
	if created {
		return next, nil
	}
	// lost the insert to the fan-out worker, which writes locked
	opened, err = progress.Unlock(userID, next.ID)
	if err != nil || !opened {
		return nil, err
	}
	return next, nil
}
