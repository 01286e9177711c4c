package service

import (
	"context"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/i18n"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/tracing"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReviewExamService struct {
	DB         *gorm.DB
	ReviewRepo *repository.ReviewExamRepository
	Cfg        config.ExamConfig

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewReviewExamService(db *gorm.DB, reviewRepo *repository.ReviewExamRepository, cfg config.ExamConfig) *ReviewExamService {
	seed := uint64(time.Now().UnixNano())
	return &ReviewExamService{
		DB:         db,
		ReviewRepo: reviewRepo,
		Cfg:        cfg,
		rng:        rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// SetRand replaces the shuffle source. Tests use it for a fixed order.
func (s *ReviewExamService) SetRand(rng *rand.Rand) {
	s.rngMu.Lock()
	s.rng = rng
	s.rngMu.Unlock()
}

// ReviewQuestionView is a review question without its answer key.
type ReviewQuestionView struct {
	QuestionID            uint   `json:"questionId"`
	OriginalQuestionIndex int    `json:"originalQuestionIndex"`
	ImageURL              string `json:"imageUrl"`
}

type ReviewExamView struct {
	ID             string               `json:"id"`
	SourceExamID   uint                 `json:"sourceExamId"`
	Title          string               `json:"title"`
	TimeLimit      int                  `json:"timeLimit"`
	TotalQuestions int                  `json:"totalQuestions"`
	Questions      []ReviewQuestionView `json:"questions"`
	BestScore      *int                 `json:"bestScore"`
	BestPercentage *float64             `json:"bestPercentage"`
	AttemptCount   int                  `json:"attemptCount"`
	CreatedAt      time.Time            `json:"createdAt"`
}

type ReviewSubmitResult struct {
	Score          int                  `json:"score"`
	Percentage     float64              `json:"percentage"`
	CorrectAnswers int                  `json:"correctAnswers"`
	TotalQuestions int                  `json:"totalQuestions"`
	AttemptNumber  int                  `json:"attemptNumber"`
	IsBestScore    bool                 `json:"isBestScore"`
	Results        []model.AnswerRecord `json:"results"`
}

// CreateFromAttempt builds and stores the review exam for the wrong answers of
// a graded submission. It runs inside the submission transaction tx.
func (s *ReviewExamService) CreateFromAttempt(ctx context.Context, tx *gorm.DB, userID uint, exam *model.Exam, progressID uint, wrongIDs []uint) (*model.ReviewExam, error) {
	s.rngMu.Lock()
	questions := BuildReviewQuestions(exam, wrongIDs, s.rng)
	s.rngMu.Unlock()

	review := &model.ReviewExam{
		UserID:       userID,
		SourceExamID: exam.ID,
		ProgressID:   progressID,
		Title:        i18n.Td(ctx, "ReviewExamTitle", map[string]any{"Title": exam.Title}),
		TimeLimit:    ReviewTimeLimit(len(questions), s.Cfg.ReviewMinTimeLimit, s.Cfg.ReviewMinutesPerQst),
		Questions:    datatypes.NewJSONSlice(questions),
	}
	if err := s.ReviewRepo.WithTx(tx).Create(review); err != nil {
		return nil, err
	}
	monitoring.ReviewExamsGenerated.Inc()
	return review, nil
}

func (s *ReviewExamService) findOwned(ctx context.Context, userID uint, reviewID string) (*model.ReviewExam, error) {
	review, err := s.ReviewRepo.WithContext(ctx).FindByID(reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return review, nil
}

func (s *ReviewExamService) Get(ctx context.Context, userID uint, reviewID string) (*ReviewExamView, error) {
	review, err := s.findOwned(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}
	count, err := s.ReviewRepo.WithContext(ctx).CountAttempts(review.ID)
	if err != nil {
		return nil, err
	}

	view := &ReviewExamView{
		ID:             review.ID,
		SourceExamID:   review.SourceExamID,
		Title:          review.Title,
		TimeLimit:      review.TimeLimit,
		TotalQuestions: len(review.Questions),
		Questions:      make([]ReviewQuestionView, len(review.Questions)),
		BestScore:      review.BestScore,
		BestPercentage: review.BestPercentage,
		AttemptCount:   count,
		CreatedAt:      review.CreatedAt,
	}
	for i, q := range review.Questions {
		view.Questions[i] = ReviewQuestionView{
			QuestionID:            q.QuestionID,
			OriginalQuestionIndex: q.OriginalQuestionIndex,
			ImageURL:              q.ImageURL,
		}
	}
	return view, nil
}

// Submit grades an attempt against the snapshot and appends it. The best
// watermark only moves on a strictly higher percentage.
func (s *ReviewExamService) Submit(ctx context.Context, userID uint, reviewID string, answers []SubmittedAnswer) (*ReviewSubmitResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ReviewExamService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("review.id", reviewID))

	review, err := s.findOwned(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}

	graded, err := grade(reviewGradables(review), answers)
	if err != nil {
		return nil, err
	}

	result := &ReviewSubmitResult{
		Score:          graded.Score,
		Percentage:     graded.Percentage,
		CorrectAnswers: graded.Score,
		TotalQuestions: graded.Total,
		Results:        graded.Records,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.ReviewRepo.WithTx(tx)
		if err := repo.LockForAttempt(review.ID); err != nil {
			return err
		}
		count, err := repo.CountAttempts(review.ID)
		if err != nil {
			return err
		}
		attempt := &model.ReviewAttempt{
			ReviewExamID:  review.ID,
			AttemptNumber: count + 1,
			Score:         graded.Score,
			Percentage:    graded.Percentage,
			Results:       datatypes.NewJSONSlice(graded.Records),
		}
		if err := repo.CreateAttempt(attempt); err != nil {
			return err
		}
		result.AttemptNumber = attempt.AttemptNumber

		best, err := repo.RaiseBest(review.ID, graded.Score, graded.Percentage)
		if err != nil {
			return err
		}
		result.IsBestScore = best
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	monitoring.ReviewAttempts.Inc()
	logger.Log.Info("Review attempt graded",
		zap.String("reviewExamId", review.ID),
		zap.Uint("userId", userID),
		zap.Int("attempt", result.AttemptNumber),
		zap.Float64("percentage", result.Percentage),
	)
	return result, nil
}

func (s *ReviewExamService) ListAttempts(ctx context.Context, userID uint, reviewID string) ([]model.ReviewAttempt, error) {
	review, err := s.findOwned(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}
	return s.ReviewRepo.WithContext(ctx).ListAttempts(review.ID)
}
