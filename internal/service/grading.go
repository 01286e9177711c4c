package service

import (
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
	"fmt"
	"math"
	"math/rand/v2"
)

// SubmittedAnswer is one (question, choice) pair of a submission. An empty
// choice means the student skipped the question.
type SubmittedAnswer struct {
	QuestionID     uint               `json:"questionId" binding:"required"`
	SelectedAnswer model.AnswerChoice `json:"selectedAnswer" binding:"omitempty,choice"`
}

type SubmitAnswersReq struct {
	Answers []SubmittedAnswer `json:"answers" binding:"required,dive"`
}

// gradable is the minimal view grading needs of a question.
type gradable struct {
	ID            uint
	CorrectAnswer model.AnswerChoice
}

type gradeResult struct {
	Score      int
	Total      int
	Percentage float64
	Records    []model.AnswerRecord
	WrongIDs   []uint
}

func examGradables(exam *model.Exam) []gradable {
	out := make([]gradable, len(exam.Questions))
	for i, q := range exam.Questions {
		out[i] = gradable{ID: q.ID, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}

func reviewGradables(review *model.ReviewExam) []gradable {
	out := make([]gradable, len(review.Questions))
	for i, q := range review.Questions {
		out[i] = gradable{ID: q.QuestionID, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}

// validateAnswers rejects answers naming a question outside the set and
// questions answered twice.
func validateAnswers(questions []gradable, answers []SubmittedAnswer) (map[uint]model.AnswerChoice, error) {
	known := make(map[uint]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}

	selected := make(map[uint]model.AnswerChoice, len(answers))
	var fields []util.FieldError
	for i, a := range answers {
		field := fmt.Sprintf("answers[%d].questionId", i)
		if _, ok := known[a.QuestionID]; !ok {
			fields = append(fields, util.NewFieldError(field, "UnknownQuestion", map[string]any{"QuestionID": a.QuestionID}))
			continue
		}
		if _, dup := selected[a.QuestionID]; dup {
			fields = append(fields, util.NewFieldError(field, "DuplicateAnswer", map[string]any{"QuestionID": a.QuestionID}))
			continue
		}
		selected[a.QuestionID] = a.SelectedAnswer
	}
	if len(fields) > 0 {
		return nil, util.NewValidationError(fields...)
	}
	return selected, nil
}

// grade scores answers against questions. Records and wrong ids follow the
// question order; an unanswered question is wrong with an empty selection.
func grade(questions []gradable, answers []SubmittedAnswer) (*gradeResult, error) {
	selected, err := validateAnswers(questions, answers)
	if err != nil {
		return nil, err
	}

	res := &gradeResult{
		Total:    len(questions),
		Records:  make([]model.AnswerRecord, 0, len(questions)),
		WrongIDs: []uint{},
	}
	for _, q := range questions {
		choice := selected[q.ID]
		correct := choice != "" && choice == q.CorrectAnswer
		if correct {
			res.Score++
		} else {
			res.WrongIDs = append(res.WrongIDs, q.ID)
		}
		res.Records = append(res.Records, model.AnswerRecord{
			QuestionID:     q.ID,
			SelectedAnswer: choice,
			IsCorrect:      correct,
		})
	}
	res.Percentage = Percentage(res.Score, res.Total)
	return res, nil
}

// Percentage is correct/total×100, unrounded. An empty exam scores 0.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct*100) / float64(total)
}

// BuildReviewQuestions snapshots the wrongly answered questions of exam and
// returns them in random order. Ids not found in the exam are skipped.
func BuildReviewQuestions(exam *model.Exam, wrongIDs []uint, rng *rand.Rand) []model.ReviewQuestion {
	out := make([]model.ReviewQuestion, 0, len(wrongIDs))
	for _, id := range wrongIDs {
		idx := exam.QuestionIndex(id)
		if idx < 0 {
			continue
		}
		q := exam.Questions[idx]
		out = append(out, model.ReviewQuestion{
			QuestionID:            q.ID,
			OriginalQuestionIndex: idx,
			ImageURL:              q.ImageURL,
			CorrectAnswer:         q.CorrectAnswer,
			Explanation:           q.Explanation,
		})
	}

	// Fisher–Yates
	for i := len(out) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ReviewTimeLimit gives k questions perQuestion minutes each, never less than minMinutes.
func ReviewTimeLimit(k, minMinutes int, perQuestion float64) int {
	limit := int(math.Ceil(perQuestion * float64(k)))
	if limit < minMinutes {
		return minMinutes
	}
	return limit
}
