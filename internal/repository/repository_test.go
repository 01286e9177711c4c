package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

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

func seedStudent(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	email := name + "@example.com"
	user := &model.User{Name: name, Email: &email, Password: "x", Role: model.Student}
	require.NoError(t, NewUserRepository(db).Create(user))
	return user
}

func seedExam(t *testing.T, db *gorm.DB, group, order int, answers ...model.AnswerChoice) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		Title:     fmt.Sprintf("Exam %d-%d", group, order),
		ExamGroup: group,
		Order:     order,
		TimeLimit: 30,
		IsActive:  true,
	}
	for i, a := range answers {
		exam.Questions = append(exam.Questions, model.Question{
			Position:      i + 1,
			ImageURL:      fmt.Sprintf("/uploads/q%d.png", i+1),
			CorrectAnswer: a,
		})
	}
	require.NoError(t, NewExamRepository(db).Create(exam))
	return exam
}

func seedEntry(t *testing.T, db *gorm.DB, user *model.User, exam *model.Exam, status model.ProgressStatus) *model.ExamProgress {
	t.Helper()
	entry := &model.ExamProgress{UserID: user.ID, ExamID: exam.ID, ExamGroup: exam.ExamGroup, Status: status}
	created, err := NewProgressRepository(db).CreateIfMissing(entry)
	require.NoError(t, err)
	require.True(t, created)
	return entry
}

func TestExamCreateCountsQuestions(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db, 1, 1, model.ChoiceA, model.ChoiceB, model.ChoiceC)

	stored, err := NewExamRepository(db).FindByID(exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.TotalQuestions)
	require.Len(t, stored.Questions, 3)
	assert.Equal(t, model.ChoiceB, stored.Questions[1].CorrectAnswer)

	_, err = NewExamRepository(db).FindByID(exam.ID + 100)
	assert.ErrorIs(t, err, util.ErrExamNotFound)
}

func TestSaveQuestionsReplacesList(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	exam := seedExam(t, db, 1, 1, model.ChoiceA, model.ChoiceB, model.ChoiceC)
	keepID := exam.Questions[1].ID

	questions := []model.Question{
		{BaseModel: model.BaseModel{ID: keepID}, ImageURL: "/uploads/edited.png", CorrectAnswer: model.ChoiceD},
		{ImageURL: "/uploads/new.png", CorrectAnswer: model.ChoiceA},
	}
	require.NoError(t, repo.SaveQuestions(exam.ID, questions))

	stored, err := repo.FindByID(exam.ID)
	require.NoError(t, err)
	require.Len(t, stored.Questions, 2)
	assert.Equal(t, keepID, stored.Questions[0].ID)
	assert.Equal(t, model.ChoiceD, stored.Questions[0].CorrectAnswer)
	assert.Equal(t, "/uploads/edited.png", stored.Questions[0].ImageURL)
	assert.Equal(t, 1, stored.Questions[0].Position)
	assert.Equal(t, "/uploads/new.png", stored.Questions[1].ImageURL)
	assert.Equal(t, 2, stored.Questions[1].Position)
}

func TestActiveSlotIsUniqueInDatabase(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	first := seedExam(t, db, 2, 1, model.ChoiceA)

	// a writer that skipped the check still cannot take the slot
	clash := &model.Exam{Title: "clash", ExamGroup: 2, Order: 1, TimeLimit: 10, IsActive: true}
	assert.ErrorIs(t, repo.Create(clash), gorm.ErrDuplicatedKey)

	// inactive exams never hold a slot
	require.NoError(t, repo.Deactivate(first.ID))
	second := seedExam(t, db, 2, 1, model.ChoiceA)
	require.NoError(t, repo.Deactivate(second.ID))
	third := seedExam(t, db, 2, 1, model.ChoiceA)

	stored, err := repo.FindByID(first.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActiveSlot)
	stored, err = repo.FindByID(third.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ActiveSlot)
	assert.True(t, *stored.ActiveSlot)
}

func TestSaveQuestionsNeverAdoptsForeignIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	first := seedExam(t, db, 1, 1, model.ChoiceA)
	second := seedExam(t, db, 1, 2, model.ChoiceB)
	foreignID := first.Questions[0].ID

	require.NoError(t, repo.SaveQuestions(second.ID, []model.Question{
		{BaseModel: model.BaseModel{ID: foreignID}, ImageURL: "/uploads/x.png", CorrectAnswer: model.ChoiceC},
	}))

	stillFirst, err := repo.FindByID(first.ID)
	require.NoError(t, err)
	require.Len(t, stillFirst.Questions, 1)
	assert.Equal(t, model.ChoiceA, stillFirst.Questions[0].CorrectAnswer)

	updated, err := repo.FindByID(second.ID)
	require.NoError(t, err)
	require.Len(t, updated.Questions, 1)
	assert.NotEqual(t, foreignID, updated.Questions[0].ID)
}

func TestGroupOrderTakenIgnoresInactive(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	exam := seedExam(t, db, 2, 1, model.ChoiceA)

	taken, err := repo.GroupOrderTaken(2, 1, 0)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.GroupOrderTaken(2, 1, exam.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, repo.Deactivate(exam.ID))
	taken, err = repo.GroupOrderTaken(2, 1, 0)
	require.NoError(t, err)
	assert.False(t, taken)

	assert.ErrorIs(t, repo.Deactivate(exam.ID), util.ErrExamNotFound)
}

func TestRecordAttemptKeepsRunningMean(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	exam := seedExam(t, db, 1, 1, model.ChoiceA)

	require.NoError(t, repo.RecordAttempt(exam.ID, 100, true))
	require.NoError(t, repo.RecordAttempt(exam.ID, 50, false))
	require.NoError(t, repo.RecordAttempt(exam.ID, 60, true))

	stored, err := repo.FindByID(exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Equal(t, 2, stored.PassCount)
	assert.InDelta(t, 70.0, stored.AverageScore, 1e-9)
}

func TestCreateIfMissingSkipsExistingPair(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "sara")
	exam := seedExam(t, db, 1, 1, model.ChoiceA)
	seedEntry(t, db, user, exam, model.StatusUnlocked)

	created, err := repo.CreateIfMissing(&model.ExamProgress{UserID: user.ID, ExamID: exam.ID, Status: model.StatusLocked})
	require.NoError(t, err)
	assert.False(t, created)

	entry, err := repo.Find(user.ID, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnlocked, entry.Status)

	count, err := repo.CountByUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClaimCompletionSucceedsOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "omar")
	exam := seedExam(t, db, 1, 1, model.ChoiceA, model.ChoiceB)
	entry := seedEntry(t, db, user, exam, model.StatusInProgress)

	result := CompletionResult{
		Score:          1,
		Percentage:     50,
		TotalQuestions: 2,
		Answers: []model.AnswerRecord{
			{QuestionID: exam.Questions[0].ID, SelectedAnswer: model.ChoiceA, IsCorrect: true},
			{QuestionID: exam.Questions[1].ID, SelectedAnswer: model.ChoiceC},
		},
		WrongQuestionIDs: []uint{exam.Questions[1].ID},
		CompletedAt:      time.Now(),
	}

	claimed, err := repo.ClaimCompletion(entry.ID, result)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimCompletion(entry.ID, result)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := repo.Find(user.ID, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 1, *stored.Score)
	require.NotNil(t, stored.Percentage)
	assert.Equal(t, 50.0, *stored.Percentage)
	assert.Len(t, stored.Answers, 2)
	assert.Equal(t, []uint{exam.Questions[1].ID}, []uint(stored.WrongQuestionIDs))
	assert.NotNil(t, stored.CompletedAt)
}

func TestClaimCompletionRejectsLocked(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "huda")
	exam := seedExam(t, db, 1, 1, model.ChoiceA)
	entry := seedEntry(t, db, user, exam, model.StatusLocked)

	claimed, err := repo.ClaimCompletion(entry.ID, CompletionResult{TotalQuestions: 1, CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestResetClearsAttempt(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "ali")
	exam := seedExam(t, db, 1, 1, model.ChoiceA)
	entry := seedEntry(t, db, user, exam, model.StatusUnlocked)

	_, err := repo.ClaimCompletion(entry.ID, CompletionResult{
		Score: 0, TotalQuestions: 1, WrongQuestionIDs: []uint{exam.Questions[0].ID}, CompletedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.LinkReviewExam(entry.ID, model.GenerateUUID()))

	require.NoError(t, repo.Reset(entry.ID))

	stored, err := repo.Find(user.ID, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnlocked, stored.Status)
	assert.Nil(t, stored.Score)
	assert.Nil(t, stored.Percentage)
	assert.Nil(t, stored.ReviewExamID)
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, stored.WrongQuestionIDs)
	assert.Empty(t, stored.Answers)
}

func TestListByUserOrdersAndHidesInactive(t *testing.T) {
	db := newTestDB(t)
	user := seedStudent(t, db, "mona")
	g2 := seedExam(t, db, 2, 1, model.ChoiceA)
	g1o2 := seedExam(t, db, 1, 2, model.ChoiceA)
	g1o1 := seedExam(t, db, 1, 1, model.ChoiceA)
	hidden := seedExam(t, db, 1, 3, model.ChoiceA)
	for _, e := range []*model.Exam{g2, g1o2, g1o1, hidden} {
		seedEntry(t, db, user, e, model.StatusLocked)
	}
	require.NoError(t, NewExamRepository(db).Deactivate(hidden.ID))

	entries, err := NewProgressRepository(db).ListByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, g1o1.ID, entries[0].ExamID)
	assert.Equal(t, g1o2.ID, entries[1].ExamID)
	assert.Equal(t, g2.ID, entries[2].ExamID)
}

func TestSetStatusForGroupOnlyTouchesFromStatuses(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "yusuf")
	a := seedExam(t, db, 3, 1, model.ChoiceA)
	b := seedExam(t, db, 3, 2, model.ChoiceA)
	c := seedExam(t, db, 4, 1, model.ChoiceA)
	seedEntry(t, db, user, a, model.StatusUnlocked)
	done := seedEntry(t, db, user, b, model.StatusUnlocked)
	seedEntry(t, db, user, c, model.StatusUnlocked)
	_, err := repo.ClaimCompletion(done.ID, CompletionResult{Score: 1, TotalQuestions: 1, CompletedAt: time.Now()})
	require.NoError(t, err)

	n, err := repo.SetStatusForGroup(user.ID, 3,
		[]model.ProgressStatus{model.StatusUnlocked, model.StatusInProgress}, model.StatusLocked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entry, err := repo.Find(user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	entry, err = repo.Find(user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnlocked, entry.Status)
}

func TestCompletedTotals(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	user := seedStudent(t, db, "laila")
	a := seedEntry(t, db, user, seedExam(t, db, 1, 1, model.ChoiceA), model.StatusUnlocked)
	b := seedEntry(t, db, user, seedExam(t, db, 1, 2, model.ChoiceA), model.StatusUnlocked)
	seedEntry(t, db, user, seedExam(t, db, 1, 3, model.ChoiceA), model.StatusUnlocked)

	_, err := repo.ClaimCompletion(a.ID, CompletionResult{Score: 7, TotalQuestions: 10, CompletedAt: time.Now()})
	require.NoError(t, err)
	_, err = repo.ClaimCompletion(b.ID, CompletionResult{Score: 3, TotalQuestions: 10, CompletedAt: time.Now()})
	require.NoError(t, err)

	totals, err := repo.CompletedTotals(user.ID)
	require.NoError(t, err)
	assert.Equal(t, CompletedTotals{Score: 10, Questions: 20, Completed: 2}, totals)
}

func newReview(t *testing.T, db *gorm.DB, user *model.User, exam *model.Exam) *model.ReviewExam {
	t.Helper()
	review := &model.ReviewExam{
		UserID:       user.ID,
		SourceExamID: exam.ID,
		Title:        "review",
		TimeLimit:    15,
		Questions: datatypes.NewJSONSlice([]model.ReviewQuestion{
			{QuestionID: exam.Questions[0].ID, CorrectAnswer: exam.Questions[0].CorrectAnswer},
		}),
	}
	require.NoError(t, NewReviewExamRepository(db).Create(review))
	return review
}

func TestRaiseBestOnlyOnStrictlyHigher(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewExamRepository(db)
	user := seedStudent(t, db, "nour")
	review := newReview(t, db, user, seedExam(t, db, 1, 1, model.ChoiceA))

	steps := []struct {
		score      int
		percentage float64
		raised     bool
	}{
		{3, 60, true},
		{3, 60, false},
		{2, 40, false},
		{4, 80, true},
	}
	for _, s := range steps {
		raised, err := repo.RaiseBest(review.ID, s.score, s.percentage)
		require.NoError(t, err)
		assert.Equal(t, s.raised, raised, "percentage %v", s.percentage)
	}

	stored, err := repo.FindByID(review.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BestScore)
	assert.Equal(t, 4, *stored.BestScore)
	assert.Equal(t, 80.0, *stored.BestPercentage)
}

func TestReviewAttemptNumbersAreUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewExamRepository(db)
	user := seedStudent(t, db, "lina")
	review := newReview(t, db, user, seedExam(t, db, 1, 1, model.ChoiceA))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).LockForAttempt(review.ID)
	}))
	assert.ErrorIs(t, repo.LockForAttempt(model.GenerateUUID()), util.ErrReviewExamNotFound)

	require.NoError(t, repo.CreateAttempt(&model.ReviewAttempt{ReviewExamID: review.ID, AttemptNumber: 1}))
	assert.Error(t, repo.CreateAttempt(&model.ReviewAttempt{ReviewExamID: review.ID, AttemptNumber: 1}))

	count, err := repo.CountAttempts(review.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReviewDeleteRemovesAttempts(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewExamRepository(db)
	user := seedStudent(t, db, "zaid")
	review := newReview(t, db, user, seedExam(t, db, 1, 1, model.ChoiceA))

	for i := 1; i <= 2; i++ {
		require.NoError(t, repo.CreateAttempt(&model.ReviewAttempt{ReviewExamID: review.ID, AttemptNumber: i}))
	}
	count, err := repo.CountAttempts(review.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.DeleteByUser(user.ID))

	_, err = repo.FindByID(review.ID)
	assert.ErrorIs(t, err, util.ErrReviewExamNotFound)
	count, err = repo.CountAttempts(review.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFanoutClaimRetryAndRequeue(t *testing.T) {
	db := newTestDB(t)
	repo := NewFanoutJobRepository(db)
	first := &model.FanoutJob{ExamID: 1, Status: model.FanoutPending}
	second := &model.FanoutJob{ExamID: 2, Status: model.FanoutPending}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))
	now := time.Now()

	job, err := repo.ClaimNext(now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)
	assert.Equal(t, model.FanoutRunning, job.Status)

	require.NoError(t, repo.MarkRetry(job, errors.New("boom"), 2, now.Add(time.Minute)))
	assert.Equal(t, model.FanoutPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.NextRunAt)

	// the retried job waits out its backoff
	job, err = repo.ClaimNext(now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second.ID, job.ID)

	job, err = repo.ClaimNext(now)
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = repo.ClaimNext(now.Add(2 * time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)
	require.NoError(t, repo.MarkRetry(job, errors.New("boom again"), 2, now.Add(3*time.Minute)))
	assert.Equal(t, model.FanoutFailed, job.Status)
	assert.Nil(t, job.NextRunAt)

	job, err = repo.ClaimNext(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, job)

	n, err := repo.RequeueRunning()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := repo.FindByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FanoutPending, stored.Status)

	failed, err := repo.FindByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom again", failed.LastError)
	assert.Equal(t, model.FanoutFailed, failed.Status)
}

func TestStudentIDsAfterSkipsStaff(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	a := seedStudent(t, db, "a")
	email := "t@example.com"
	require.NoError(t, repo.Create(&model.User{Name: "t", Email: &email, Password: "x", Role: model.Teacher}))
	b := seedStudent(t, db, "b")
	c := seedStudent(t, db, "c")

	ids, err := repo.StudentIDsAfter(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, ids)

	ids, err = repo.StudentIDsAfter(b.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ID}, ids)
}

func TestFindByIdentifierMatchesEmailOrPhone(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	phone := "0500000000"
	user := &model.User{Name: "p", Phone: &phone, Password: "x", Role: model.Student}
	require.NoError(t, repo.Create(user))
	seedStudent(t, db, "e")

	found, err := repo.FindByIdentifier(phone)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found, err = repo.FindByIdentifier("e@example.com")
	require.NoError(t, err)
	assert.Equal(t, "e", found.Name)

	_, err = repo.FindByIdentifier("nobody")
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}
