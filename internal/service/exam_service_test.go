package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateExamRejectsTakenSlotAndBadGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createExam(t, 1, 1, 1)

	req := CreateExamReq{
		Title:     "again",
		ExamGroup: intPtr(1),
		Order:     1,
		TimeLimit: 10,
		Questions: []QuestionReq{{ImageURL: "/a.png", CorrectAnswer: model.ChoiceA}},
	}
	_, err := f.exams.Create(ctx, 1, req)
	assert.ErrorIs(t, err, util.ErrDuplicateExamOrder)

	req.ExamGroup = intPtr(9)
	_, err = f.exams.Create(ctx, 1, req)
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)

	// group 0 is a valid staging group
	req.ExamGroup = intPtr(0)
	exam, err := f.exams.Create(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, 1, exam.TotalQuestions)
}

func TestCreateExamQueuesFanoutAndPublishes(t *testing.T) {
	f := newFixture(t)
	exam := f.createExam(t, 1, 1, 3)

	assert.Equal(t, 3, exam.TotalQuestions)
	assert.Equal(t, uint(1), exam.CreatedBy)
	for i, q := range exam.Questions {
		assert.Equal(t, i+1, q.Position)
	}

	jobs := f.jobsFor(t, exam.ID)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.FanoutPending, jobs[0].Status)
	assert.Equal(t, []string{util.EventExamCreated}, f.notes.names())
}

func TestDeactivatedExamFreesItsSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 2, 1, 1)

	require.NoError(t, f.exams.Deactivate(ctx, exam.ID))
	list, err := f.exams.ListByGroup(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, list)

	f.createExam(t, 2, 1, 1)
}

func TestUpdateExamReplacesQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 1, 1, 3)
	kept := exam.Questions[1]

	title := "renamed"
	questions := []QuestionReq{
		{ID: kept.ID, ImageURL: "/kept.png", CorrectAnswer: model.ChoiceD},
		{ImageURL: "/new.png", CorrectAnswer: model.ChoiceA},
	}
	updated, err := f.exams.Update(ctx, exam.ID, UpdateExamReq{Title: &title, Questions: &questions})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, 2, updated.TotalQuestions)
	require.Len(t, updated.Questions, 2)
	assert.Equal(t, kept.ID, updated.Questions[0].ID)
	assert.Equal(t, model.ChoiceD, updated.Questions[0].CorrectAnswer)
	assert.Equal(t, "/new.png", updated.Questions[1].ImageURL)
	assert.Equal(t, -1, updated.QuestionIndex(exam.Questions[0].ID))
}

func TestUpdateExamGroupSyncsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.createExam(t, 2, 1, 1)
	student := f.createStudent(t, "a")
	f.createExam(t, 3, 1, 1)

	_, err := f.exams.Update(ctx, exam.ID, UpdateExamReq{ExamGroup: intPtr(3)})
	assert.ErrorIs(t, err, util.ErrDuplicateExamOrder)

	updated, err := f.exams.Update(ctx, exam.ID, UpdateExamReq{ExamGroup: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.ExamGroup)
	assert.Equal(t, 1, updated.TotalQuestions)
	assert.Equal(t, 4, f.entry(t, student.ID, exam.ID).ExamGroup)

	_, err = f.exams.Update(ctx, exam.ID, UpdateExamReq{ExamGroup: intPtr(-1)})
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)
	_, err = f.exams.Update(ctx, 4040, UpdateExamReq{})
	assert.ErrorIs(t, err, util.ErrExamNotFound)
}

func TestGetExamVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createExam(t, 1, 1, 2)
	second := f.createExam(t, 1, 2, 2)
	student := f.createStudent(t, "a")
	viewer := &util.Claims{UserID: student.ID, Role: model.Student}

	_, err := f.exams.Get(ctx, viewer, second.ID)
	assert.ErrorIs(t, err, util.ErrExamLocked)

	open, err := f.exams.Get(ctx, viewer, first.ID)
	require.NoError(t, err)
	for _, q := range open.Questions {
		assert.Empty(t, q.CorrectAnswer)
		assert.Empty(t, q.Explanation)
		assert.NotEmpty(t, q.ImageURL)
	}

	_, err = f.submissions.SubmitExam(ctx, student.ID, first.ID, answers(first, 1))
	require.NoError(t, err)
	done, err := f.exams.Get(ctx, viewer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Questions[0].CorrectAnswer, done.Questions[0].CorrectAnswer)

	// an exam created after the student has no entry for them yet
	third := f.createExam(t, 2, 1, 1)
	_, err = f.exams.Get(ctx, viewer, third.ID)
	assert.ErrorIs(t, err, util.ErrExamLocked)

	require.NoError(t, f.exams.Deactivate(ctx, second.ID))
	_, err = f.exams.Get(ctx, viewer, second.ID)
	assert.ErrorIs(t, err, util.ErrExamNotFound)

	teacher := &util.Claims{UserID: 1, Role: model.Teacher}
	full, err := f.exams.Get(ctx, teacher, second.ID)
	require.NoError(t, err)
	assert.False(t, full.IsActive)
	assert.NotEmpty(t, full.Questions[0].CorrectAnswer)
}

func TestListByGroupBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createExam(t, 5, 2, 1)
	f.createExam(t, 5, 1, 1)
	f.createExam(t, 6, 1, 1)

	list, err := f.exams.ListByGroup(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Order)
	assert.Equal(t, 2, list[1].Order)

	_, err = f.exams.ListByGroup(ctx, 0)
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)
	_, err = f.exams.ListByGroup(ctx, 9)
	assert.ErrorIs(t, err, util.ErrInvalidExamGroup)

	all, err := f.exams.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStudentViewLeavesSourceIntact(t *testing.T) {
	exam := sampleExam(2)
	view := StudentView(exam)
	assert.Empty(t, view.Questions[0].CorrectAnswer)
	assert.Equal(t, model.ChoiceA, exam.Questions[0].CorrectAnswer)
	assert.Equal(t, "why", exam.Questions[1].Explanation)
}

func TestConcurrentCreatesShareNoSlot(t *testing.T) {
	f := newFixture(t)

	const workers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.exams.Create(context.Background(), 1, CreateExamReq{
				Title:     "race",
				ExamGroup: intPtr(4),
				Order:     2,
				TimeLimit: 10,
				Questions: []QuestionReq{{ImageURL: "/a.png", CorrectAnswer: model.ChoiceA}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, util.ErrDuplicateExamOrder):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, rejected)
	list, err := f.exams.ListByGroup(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
