package service

import (
	"errors"
	"math/rand/v2"
	"testing"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 70.0, Percentage(7, 10))
	assert.Equal(t, 100.0, Percentage(4, 4))
	assert.InDelta(t, 33.3333, Percentage(1, 3), 1e-4)
	assert.Equal(t, 0.0, Percentage(0, 0))
}

func TestReviewTimeLimit(t *testing.T) {
	assert.Equal(t, 15, ReviewTimeLimit(3, 15, 2))
	assert.Equal(t, 15, ReviewTimeLimit(0, 15, 2))
	assert.Equal(t, 16, ReviewTimeLimit(8, 15, 2))
	assert.Equal(t, 20, ReviewTimeLimit(10, 15, 2))
	assert.Equal(t, 17, ReviewTimeLimit(11, 15, 1.5))
}

func gradables(answers ...model.AnswerChoice) []gradable {
	out := make([]gradable, len(answers))
	for i, a := range answers {
		out[i] = gradable{ID: uint(i + 1), CorrectAnswer: a}
	}
	return out
}

func TestGradeFollowsQuestionOrder(t *testing.T) {
	questions := gradables(model.ChoiceA, model.ChoiceB, model.ChoiceC, model.ChoiceD)
	res, err := grade(questions, []SubmittedAnswer{
		{QuestionID: 4, SelectedAnswer: model.ChoiceD},
		{QuestionID: 1, SelectedAnswer: model.ChoiceA},
		{QuestionID: 2, SelectedAnswer: model.ChoiceC},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 50.0, res.Percentage)
	assert.Equal(t, []uint{2, 3}, res.WrongIDs)
	require.Len(t, res.Records, 4)
	for i, r := range res.Records {
		assert.Equal(t, uint(i+1), r.QuestionID)
	}
	// unanswered counts as wrong with an empty selection
	assert.Equal(t, model.AnswerChoice(""), res.Records[2].SelectedAnswer)
	assert.False(t, res.Records[2].IsCorrect)
}

func TestGradeAllCorrectHasEmptyWrongList(t *testing.T) {
	res, err := grade(gradables(model.ChoiceA), []SubmittedAnswer{{QuestionID: 1, SelectedAnswer: model.ChoiceA}})
	require.NoError(t, err)
	assert.NotNil(t, res.WrongIDs)
	assert.Empty(t, res.WrongIDs)
	assert.Equal(t, 100.0, res.Percentage)
}

func TestGradeRejectsUnknownAndDuplicateQuestions(t *testing.T) {
	questions := gradables(model.ChoiceA, model.ChoiceB)

	_, err := grade(questions, []SubmittedAnswer{{QuestionID: 99, SelectedAnswer: model.ChoiceA}})
	require.ErrorIs(t, err, util.ErrValidation)
	var verr *util.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "answers[0].questionId", verr.Fields[0].Field)
	assert.Equal(t, "UnknownQuestion", verr.Fields[0].MsgID)

	_, err = grade(questions, []SubmittedAnswer{
		{QuestionID: 1, SelectedAnswer: model.ChoiceA},
		{QuestionID: 1, SelectedAnswer: model.ChoiceB},
	})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "answers[1].questionId", verr.Fields[0].Field)
	assert.Equal(t, "DuplicateAnswer", verr.Fields[0].MsgID)
}

func sampleExam(n int) *model.Exam {
	exam := &model.Exam{Title: "sample"}
	for i := 0; i < n; i++ {
		q := model.Question{
			ImageURL:      "/img",
			CorrectAnswer: choices[i%len(choices)],
			Explanation:   "why",
		}
		q.ID = uint(100 + i)
		exam.Questions = append(exam.Questions, q)
	}
	return exam
}

func TestBuildReviewQuestionsSnapshotsWrongOnes(t *testing.T) {
	exam := sampleExam(10)
	wrong := []uint{101, 104, 107, 109, 555}

	questions := BuildReviewQuestions(exam, wrong, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, questions, 4)

	got := make([]uint, len(questions))
	for i, q := range questions {
		got[i] = q.QuestionID
		idx := exam.QuestionIndex(q.QuestionID)
		assert.Equal(t, idx, q.OriginalQuestionIndex)
		assert.Equal(t, exam.Questions[idx].CorrectAnswer, q.CorrectAnswer)
		assert.Equal(t, "why", q.Explanation)
	}
	assert.ElementsMatch(t, []uint{101, 104, 107, 109}, got)
}

func TestBuildReviewQuestionsShuffleIsSeeded(t *testing.T) {
	exam := sampleExam(20)
	wrong := make([]uint, 0, 20)
	for _, q := range exam.Questions {
		wrong = append(wrong, q.ID)
	}

	a := BuildReviewQuestions(exam, wrong, rand.New(rand.NewPCG(42, 1)))
	b := BuildReviewQuestions(exam, wrong, rand.New(rand.NewPCG(42, 1)))
	assert.Equal(t, a, b)

	// nil falls back to the global source and still returns every question
	c := BuildReviewQuestions(exam, wrong, nil)
	assert.Len(t, c, 20)
}

func TestBuildReviewQuestionsPermutesOrder(t *testing.T) {
	exam := sampleExam(20)
	wrong := make([]uint, 0, 20)
	for _, q := range exam.Questions {
		wrong = append(wrong, q.ID)
	}

	questions := BuildReviewQuestions(exam, wrong, rand.New(rand.NewPCG(42, 1)))
	got := make([]uint, len(questions))
	moved := 0
	for i, q := range questions {
		got[i] = q.QuestionID
		if q.QuestionID != wrong[i] {
			moved++
		}
	}
	assert.NotEqual(t, wrong, got)
	assert.ElementsMatch(t, wrong, got)
	assert.Greater(t, moved, 10)

	// two questions come back in both orders across seeds
	orders := map[uint]int{}
	for seed := uint64(0); seed < 64; seed++ {
		pair := BuildReviewQuestions(exam, wrong[:2], rand.New(rand.NewPCG(seed, 7)))
		orders[pair[0].QuestionID]++
	}
	assert.Len(t, orders, 2)
}
