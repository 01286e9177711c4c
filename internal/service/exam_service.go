package service

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	DB           *gorm.DB
	ExamRepo     *repository.ExamRepository
	ProgressRepo *repository.ProgressRepository
	Fanout       *FanoutWorker
	Notifier     Publisher
}

func NewExamService(db *gorm.DB, examRepo *repository.ExamRepository, progressRepo *repository.ProgressRepository, fanout *FanoutWorker, notifier Publisher) *ExamService {
	return &ExamService{
		DB:           db,
		ExamRepo:     examRepo,
		ProgressRepo: progressRepo,
		Fanout:       fanout,
		Notifier:     notifier,
	}
}

type QuestionReq struct {
	ID            uint               `json:"id"`
	ImageURL      string             `json:"imageUrl" binding:"required,max=512"`
	CorrectAnswer model.AnswerChoice `json:"correctAnswer" binding:"required,choice"`
	Explanation   string             `json:"explanation"`
}

type CreateExamReq struct {
	Title       string        `json:"title" binding:"required,max=255"`
	Description string        `json:"description"`
	ExamGroup   *int          `json:"examGroup" binding:"required,min=0,max=8"`
	Order       int           `json:"order" binding:"required,min=1"`
	TimeLimit   int           `json:"timeLimit" binding:"required,min=1"`
	Questions   []QuestionReq `json:"questions" binding:"required,min=1,dive"`
}

type UpdateExamReq struct {
	Title       *string        `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string        `json:"description"`
	ExamGroup   *int           `json:"examGroup" binding:"omitempty,min=0,max=8"`
	Order       *int           `json:"order" binding:"omitempty,min=1"`
	TimeLimit   *int           `json:"timeLimit" binding:"omitempty,min=1"`
	Questions   *[]QuestionReq `json:"questions" binding:"omitempty,min=1,dive"`
}

type ExamStatistics struct {
	ExamID         uint    `json:"examId"`
	Title          string  `json:"title"`
	TotalQuestions int     `json:"totalQuestions"`
	AttemptCount   int     `json:"attemptCount"`
	AverageScore   float64 `json:"averageScore"`
	PassCount      int     `json:"passCount"`
	PassRate       float64 `json:"passRate"`
}

func toQuestions(reqs []QuestionReq) []model.Question {
	questions := make([]model.Question, len(reqs))
	for i, q := range reqs {
		questions[i] = model.Question{
			BaseModel:     model.BaseModel{ID: q.ID},
			Position:      i + 1,
			ImageURL:      q.ImageURL,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		}
	}
	return questions
}

// StudentView copies exam without the answer key.
func StudentView(exam *model.Exam) *model.Exam {
	out := *exam
	out.Questions = make([]model.Question, len(exam.Questions))
	for i, q := range exam.Questions {
		q.CorrectAnswer = ""
		q.Explanation = ""
		out.Questions[i] = q
	}
	return &out
}

func validGroup(group int) bool {
	return group >= model.MinExamGroup && group <= model.MaxExamGroup
}

// ensureSlotFree runs inside the write transaction; the slot index backs it
// up when two writers pass the check together.
func ensureSlotFree(exams *repository.ExamRepository, group, order int, excludeID uint) error {
	taken, err := exams.GroupOrderTaken(group, order, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return util.ErrDuplicateExamOrder
	}
	return nil
}

func slotConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrDuplicateExamOrder
	}
	return err
}

func (s *ExamService) ListActive(ctx context.Context) ([]model.Exam, error) {
	return s.ExamRepo.WithContext(ctx).ListActive()
}

// ListByGroup lists the active exams of a curriculum group 1..8.
func (s *ExamService) ListByGroup(ctx context.Context, group int) ([]model.Exam, error) {
	if group < model.FirstExamGroup || group > model.MaxExamGroup {
		return nil, util.ErrInvalidExamGroup
	}
	return s.ExamRepo.WithContext(ctx).ListActiveByGroup(group)
}

// Get returns the exam as viewer may see it. Staff get the answer key; a
// student needs an open entry and sees answers only after completing it.
func (s *ExamService) Get(ctx context.Context, viewer *util.Claims, id uint) (*model.Exam, error) {
	if viewer.IsStaff() {
		return s.ExamRepo.WithContext(ctx).FindByID(id)
	}

	exam, err := s.ExamRepo.WithContext(ctx).FindActiveByID(id)
	if err != nil {
		return nil, err
	}
	entry, err := s.ProgressRepo.WithContext(ctx).Find(viewer.UserID, id)
	if errors.Is(err, util.ErrProgressNotFound) {
		return nil, util.ErrExamLocked
	}
	if err != nil {
		return nil, err
	}
	switch entry.Status {
	case model.StatusLocked:
		return nil, util.ErrExamLocked
	case model.StatusCompleted:
		return exam, nil
	}
	return StudentView(exam), nil
}

// Create stores the exam with its questions and queues the job that gives
// every student an entry for it. The job runs in the background.
func (s *ExamService) Create(ctx context.Context, creatorID uint, req CreateExamReq) (*model.Exam, error) {
	group := *req.ExamGroup
	if !validGroup(group) {
		return nil, util.ErrInvalidExamGroup
	}
	exam := &model.Exam{
		Title:       req.Title,
		Description: req.Description,
		ExamGroup:   group,
		Order:       req.Order,
		TimeLimit:   req.TimeLimit,
		IsActive:    true,
		CreatedBy:   creatorID,
		Questions:   toQuestions(req.Questions),
	}
	for i := range exam.Questions {
		// create never adopts client ids
		exam.Questions[i].ID = 0
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exams := s.ExamRepo.WithTx(tx)
		if err := ensureSlotFree(exams, group, req.Order, 0); err != nil {
			return err
		}
		if err := exams.Create(exam); err != nil {
			return slotConflict(err)
		}
		_, err := s.Fanout.Enqueue(tx, exam.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Fanout.Wake()
	logger.Log.Info("Exam created",
		zap.Uint("examId", exam.ID),
		zap.Int("group", exam.ExamGroup),
		zap.Int("order", exam.Order),
		zap.Int("questions", exam.TotalQuestions),
	)
	s.Notifier.Publish(util.EventExamCreated, map[string]interface{}{
		"examId":    exam.ID,
		"title":     exam.Title,
		"examGroup": exam.ExamGroup,
		"order":     exam.Order,
	})
	return exam, nil
}

// Update applies the given fields. A new question list replaces the old one
// and a group change is copied onto every progress entry of the exam.
func (s *ExamService) Update(ctx context.Context, id uint, req UpdateExamReq) (*model.Exam, error) {
	exam, err := s.ExamRepo.WithContext(ctx).FindByID(id)
	if err != nil {
		return nil, err
	}

	oldGroup := exam.ExamGroup
	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.ExamGroup != nil {
		if !validGroup(*req.ExamGroup) {
			return nil, util.ErrInvalidExamGroup
		}
		exam.ExamGroup = *req.ExamGroup
	}
	if req.Order != nil {
		exam.Order = *req.Order
	}
	if req.TimeLimit != nil {
		exam.TimeLimit = *req.TimeLimit
	}

	slotMoved := exam.IsActive && (exam.ExamGroup != oldGroup || req.Order != nil)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exams := s.ExamRepo.WithTx(tx)
		if slotMoved {
			if err := ensureSlotFree(exams, exam.ExamGroup, exam.Order, exam.ID); err != nil {
				return err
			}
		}
		if req.Questions != nil {
			questions := toQuestions(*req.Questions)
			if err := exams.SaveQuestions(exam.ID, questions); err != nil {
				return err
			}
			exam.Questions = questions
		}
		if err := exams.Save(exam); err != nil {
			return slotConflict(err)
		}
		if exam.ExamGroup != oldGroup {
			return s.ProgressRepo.WithTx(tx).SyncGroup(exam.ID, exam.ExamGroup)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.ExamRepo.WithContext(ctx).FindByID(id)
}

// Deactivate hides the exam. Progress entries and statistics are kept.
func (s *ExamService) Deactivate(ctx context.Context, id uint) error {
	if err := s.ExamRepo.WithContext(ctx).Deactivate(id); err != nil {
		return err
	}
	logger.Log.Info("Exam deactivated", zap.Uint("examId", id))
	return nil
}

func (s *ExamService) Statistics(ctx context.Context, id uint) (*ExamStatistics, error) {
	exam, err := s.ExamRepo.WithContext(ctx).FindByID(id)
	if err != nil {
		return nil, err
	}
	stats := &ExamStatistics{
		ExamID:         exam.ID,
		Title:          exam.Title,
		TotalQuestions: exam.TotalQuestions,
		AttemptCount:   exam.AttemptCount,
		AverageScore:   exam.AverageScore,
		PassCount:      exam.PassCount,
	}
	stats.PassRate = Percentage(exam.PassCount, exam.AttemptCount)
	return stats, nil
}
