package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/i18n"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	Event string
	Data  interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Event: event, Data: data})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

type fixture struct {
	db *gorm.DB

	users    *repository.UserRepository
	examRepo *repository.ExamRepository
	progress *repository.ProgressRepository
	reviews  *repository.ReviewExamRepository
	jobs     *repository.FanoutJobRepository

	exams       *ExamService
	submissions *SubmissionService
	reviewSvc   *ReviewExamService
	students    *StudentService
	fanout      *FanoutWorker
	notes       *recordingPublisher
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, i18n.Init("en"))

	db := newTestDB(t)
	f := &fixture{
		db:       db,
		users:    repository.NewUserRepository(db),
		examRepo: repository.NewExamRepository(db),
		progress: repository.NewProgressRepository(db),
		reviews:  repository.NewReviewExamRepository(db),
		jobs:     repository.NewFanoutJobRepository(db),
		notes:    &recordingPublisher{},
	}

	examCfg := config.ExamConfig{PassPercentage: 50, ReviewMinTimeLimit: 15, ReviewMinutesPerQst: 2}
	f.reviewSvc = NewReviewExamService(db, f.reviews, examCfg)
	f.reviewSvc.SetRand(rand.New(rand.NewPCG(7, 11)))
	f.fanout = NewFanoutWorker(f.jobs, f.users, f.examRepo, f.progress, config.FanoutConfig{BatchSize: 2, MaxAttempts: 3})
	f.exams = NewExamService(db, f.examRepo, f.progress, f.fanout, f.notes)
	f.submissions = NewSubmissionService(
		db,
		f.examRepo,
		f.progress,
		f.users,
		f.reviews,
		f.reviewSvc,
		NewProgressionUnlocker(f.examRepo, f.progress),
		f.notes,
		examCfg,
	)
	f.students = NewStudentService(db, f.users, f.examRepo, f.progress, f.reviews, f.notes)
	return f
}

var choices = []model.AnswerChoice{model.ChoiceA, model.ChoiceB, model.ChoiceC, model.ChoiceD}

func intPtr(v int) *int { return &v }

// createExam stores an active exam with n questions through the exam service.
func (f *fixture) createExam(t *testing.T, group, order, n int) *model.Exam {
	t.Helper()
	req := CreateExamReq{
		Title:     fmt.Sprintf("Exam %d-%d", group, order),
		ExamGroup: intPtr(group),
		Order:     order,
		TimeLimit: 30,
	}
	for i := 0; i < n; i++ {
		req.Questions = append(req.Questions, QuestionReq{
			ImageURL:      fmt.Sprintf("/uploads/questions/%d-%d-%d.png", group, order, i),
			CorrectAnswer: choices[i%len(choices)],
			Explanation:   fmt.Sprintf("explanation %d", i),
		})
	}
	exam, err := f.exams.Create(context.Background(), 1, req)
	require.NoError(t, err)

	stored, err := f.examRepo.FindByID(exam.ID)
	require.NoError(t, err)
	return stored
}

func (f *fixture) createStudent(t *testing.T, name string) *model.User {
	t.Helper()
	student, err := f.students.CreateStudent(context.Background(), CreateStudentReq{
		Name:     name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return student
}

func (f *fixture) entry(t *testing.T, userID, examID uint) *model.ExamProgress {
	t.Helper()
	e, err := f.progress.Find(userID, examID)
	require.NoError(t, err)
	return e
}

// answers answers exam with the first correct questions right and the rest wrong.
func answers(exam *model.Exam, correct int) []SubmittedAnswer {
	out := make([]SubmittedAnswer, len(exam.Questions))
	for i, q := range exam.Questions {
		choice := q.CorrectAnswer
		if i >= correct {
			choice = wrongChoice(q.CorrectAnswer)
		}
		out[i] = SubmittedAnswer{QuestionID: q.ID, SelectedAnswer: choice}
	}
	return out
}

func wrongChoice(c model.AnswerChoice) model.AnswerChoice {
	if c == model.ChoiceA {
		return model.ChoiceB
	}
	return model.ChoiceA
}
