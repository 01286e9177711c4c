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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmissionService owns the student side of the progress ledger: starting,
// submitting and (for teachers) resetting exams.
type SubmissionService struct {
	DB           *gorm.DB
	ExamRepo     *repository.ExamRepository
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	ReviewRepo   *repository.ReviewExamRepository
	Reviews      *ReviewExamService
	Progression  *ProgressionUnlocker
	Notifier     Publisher
	Cfg          config.ExamConfig
}

func NewSubmissionService(
	db *gorm.DB,
	examRepo *repository.ExamRepository,
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	reviewRepo *repository.ReviewExamRepository,
	reviews *ReviewExamService,
	progression *ProgressionUnlocker,
	notifier Publisher,
	cfg config.ExamConfig,
) *SubmissionService {
	return &SubmissionService{
		DB:           db,
		ExamRepo:     examRepo,
		ProgressRepo: progressRepo,
		UserRepo:     userRepo,
		ReviewRepo:   reviewRepo,
		Reviews:      reviews,
		Progression:  progression,
		Notifier:     notifier,
		Cfg:          cfg,
	}
}

type SubmitResult struct {
	Score          int     `json:"score"`
	Percentage     float64 `json:"percentage"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalQuestions int     `json:"totalQuestions"`
	WrongAnswers   int     `json:"wrongAnswers"`
	Passed         bool    `json:"passed"`
	HasReviewExam  bool    `json:"hasReviewExam"`
	ReviewExamID   *string `json:"reviewExamId"`
	UnlockedExamID *uint   `json:"unlockedExamId"`
	WrongQuestions []uint  `json:"wrongQuestionIds"`
}

type StartResult struct {
	Progress *model.ExamProgress `json:"progress"`
	Exam     *model.Exam         `json:"exam"`
}

func (s *SubmissionService) MyProgress(ctx context.Context, userID uint) ([]model.ExamProgress, error) {
	return s.ProgressRepo.WithContext(ctx).ListByUser(userID)
}

// entryFor returns the student's entry, treating a missing one as locked.
func (s *SubmissionService) entryFor(ctx context.Context, userID, examID uint) (*model.ExamProgress, error) {
	entry, err := s.ProgressRepo.WithContext(ctx).Find(userID, examID)
	if errors.Is(err, util.ErrProgressNotFound) {
		return nil, util.ErrExamLocked
	}
	return entry, err
}

// StartExam moves an unlocked entry to in_progress. Starting twice is a no-op.
func (s *SubmissionService) StartExam(ctx context.Context, userID, examID uint) (*StartResult, error) {
	exam, err := s.ExamRepo.WithContext(ctx).FindActiveByID(examID)
	if err != nil {
		return nil, err
	}
	entry, err := s.entryFor(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case model.StatusLocked:
		return nil, util.ErrExamLocked
	case model.StatusCompleted:
		return nil, util.ErrExamAlreadyCompleted
	case model.StatusUnlocked:
		now := time.Now()
		if _, err := s.ProgressRepo.WithContext(ctx).MarkStarted(entry.ID, now); err != nil {
			return nil, err
		}
		if entry, err = s.ProgressRepo.WithContext(ctx).Find(userID, examID); err != nil {
			return nil, err
		}
	}

	return &StartResult{Progress: entry, Exam: StudentView(exam)}, nil
}

// SubmitExam grades answers and completes the entry. Completion, the review
// exam, exam statistics, student totals and the progression unlock commit
// together; of two concurrent submissions only one gets through.
func (s *SubmissionService) SubmitExam(ctx context.Context, userID, examID uint, answers []SubmittedAnswer) (*SubmitResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "SubmissionService.SubmitExam")
	defer span.End()
	span.SetAttributes(attribute.Int("exam.id", int(examID)), attribute.Int("user.id", int(userID)))

	exam, err := s.ExamRepo.WithContext(ctx).FindActiveByID(examID)
	if err != nil {
		return nil, err
	}
	entry, err := s.entryFor(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	switch entry.Status {
	case model.StatusLocked:
		return nil, util.ErrExamLocked
	case model.StatusCompleted:
		return nil, util.ErrExamAlreadyCompleted
	}

	graded, err := grade(examGradables(exam), answers)
	if err != nil {
		monitoring.ExamSubmissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	passed := graded.Percentage >= s.Cfg.PassPercentage
	result := &SubmitResult{
		Score:          graded.Score,
		Percentage:     graded.Percentage,
		CorrectAnswers: graded.Score,
		TotalQuestions: graded.Total,
		WrongAnswers:   len(graded.WrongIDs),
		Passed:         passed,
		WrongQuestions: graded.WrongIDs,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.ProgressRepo.WithTx(tx).ClaimCompletion(entry.ID, repository.CompletionResult{
			Score:            graded.Score,
			Percentage:       graded.Percentage,
			TotalQuestions:   graded.Total,
			Answers:          graded.Records,
			WrongQuestionIDs: graded.WrongIDs,
			CompletedAt:      time.Now(),
		})
		if err != nil {
			return err
		}
		if !claimed {
			return util.ErrExamAlreadyCompleted
		}

		if len(graded.WrongIDs) > 0 {
			review, err := s.Reviews.CreateFromAttempt(ctx, tx, userID, exam, entry.ID, graded.WrongIDs)
			if err != nil {
				return err
			}
			if err := s.ProgressRepo.WithTx(tx).LinkReviewExam(entry.ID, review.ID); err != nil {
				return err
			}
			result.HasReviewExam = true
			result.ReviewExamID = &review.ID
		}

		if err := s.ExamRepo.WithTx(tx).RecordAttempt(exam.ID, graded.Percentage, passed); err != nil {
			return err
		}

		next, err := s.Progression.UnlockNext(tx, userID, exam)
		if err != nil {
			return err
		}
		if next != nil {
			result.UnlockedExamID = &next.ID
		}

		return refreshStudentTotals(tx, s.ProgressRepo, s.UserRepo, userID)
	})
	if err != nil {
		if errors.Is(err, util.ErrExamAlreadyCompleted) {
			monitoring.ExamSubmissions.WithLabelValues("rejected").Inc()
		} else {
			span.RecordError(err)
		}
		return nil, err
	}

	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	monitoring.ExamSubmissions.WithLabelValues(outcome).Inc()
	logger.Log.Info("Exam submitted",
		zap.Uint("userId", userID),
		zap.Uint("examId", examID),
		zap.Int("score", graded.Score),
		zap.Int("total", graded.Total),
		zap.Float64("percentage", graded.Percentage),
	)

	s.Notifier.Publish(util.EventExamSubmitted, map[string]interface{}{
		"userId":       userID,
		"examId":       examID,
		"examGroup":    exam.ExamGroup,
		"score":        graded.Score,
		"percentage":   graded.Percentage,
		"reviewExamId": result.ReviewExamID,
	})
	return result, nil
}

// RepeatExam lets a teacher hand an exam back to a student: the entry returns
// to unlocked with every attempt field cleared and its review exam removed.
func (s *SubmissionService) RepeatExam(ctx context.Context, studentID, examID uint) (*model.ExamProgress, error) {
	if _, err := s.UserRepo.WithContext(ctx).FindStudentByID(studentID); err != nil {
		return nil, err
	}
	if _, err := s.ExamRepo.WithContext(ctx).FindByID(examID); err != nil {
		return nil, err
	}

	entry, err := s.ProgressRepo.WithContext(ctx).Find(studentID, examID)
	if errors.Is(err, util.ErrProgressNotFound) {
		return nil, util.ErrNothingToRepeat
	}
	if err != nil {
		return nil, err
	}
	if entry.Status == model.StatusLocked || entry.Status == model.StatusUnlocked {
		return nil, util.ErrNothingToRepeat
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.ReviewExamID != nil {
			if err := s.ReviewRepo.WithTx(tx).Delete(*entry.ReviewExamID); err != nil {
				return err
			}
		}
		if err := s.ProgressRepo.WithTx(tx).Reset(entry.ID); err != nil {
			return err
		}
		return refreshStudentTotals(tx, s.ProgressRepo, s.UserRepo, studentID)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Exam handed back for repeat", zap.Uint("userId", studentID), zap.Uint("examId", examID))
	return s.ProgressRepo.WithContext(ctx).Find(studentID, examID)
}

// refreshStudentTotals recomputes the student's aggregate score from every
// completed entry.
func refreshStudentTotals(tx *gorm.DB, progressRepo *repository.ProgressRepository, userRepo *repository.UserRepository, userID uint) error {
	totals, err := progressRepo.WithTx(tx).CompletedTotals(userID)
	if err != nil {
		return err
	}
	return userRepo.WithTx(tx).UpdateTotals(userID, totals.Score, Percentage(totals.Score, totals.Questions), totals.Completed)
}
