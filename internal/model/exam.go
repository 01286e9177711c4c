package model

import (
	"gorm.io/gorm"
)

const (
	MinExamGroup = 0
	MaxExamGroup = 8

	FirstExamGroup = 1
	FirstExamOrder = 1
)

type AnswerChoice string

const (
	ChoiceA AnswerChoice = "A"
	ChoiceB AnswerChoice = "B"
	ChoiceC AnswerChoice = "C"
	ChoiceD AnswerChoice = "D"
)

func (c AnswerChoice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return true
	}
	return false
}

// swagger:model Exam
type Exam struct {
	BaseModel
	Title          string     `gorm:"size:255;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	ExamGroup      int        `gorm:"uniqueIndex:idx_exam_active_slot;not null" json:"examGroup"`
	Order          int        `gorm:"column:sort_order;uniqueIndex:idx_exam_active_slot;not null" json:"order"`
	TimeLimit      int        `gorm:"not null" json:"timeLimit"` // minutes
	IsActive       bool       `gorm:"index;default:true" json:"isActive"`
	// true while active, NULL otherwise: NULLs never collide in the slot index
	ActiveSlot     *bool      `gorm:"uniqueIndex:idx_exam_active_slot" json:"-"`
	TotalQuestions int        `gorm:"default:0" json:"totalQuestions"`
	CreatedBy      uint       `gorm:"index" json:"createdBy"`
	Questions      []Question `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`

	// aggregate statistics, touched on every graded submission
	AttemptCount int     `gorm:"default:0" json:"attemptCount"`
	AverageScore float64 `gorm:"default:0" json:"averageScore"` // running mean of percentages
	PassCount    int     `gorm:"default:0" json:"passCount"`
}

func (Exam) TableName() string {
	return "exams"
}

// BeforeSave keeps the denormalised question count in step with a loaded
// question list, and the slot marker in step with IsActive.
func (e *Exam) BeforeSave(tx *gorm.DB) error {
	if e.Questions != nil {
		e.TotalQuestions = len(e.Questions)
	}
	e.ActiveSlot = nil
	if e.IsActive {
		slot := true
		e.ActiveSlot = &slot
	}
	return nil
}

// IsFirst reports whether the exam opens the curriculum.
func (e *Exam) IsFirst() bool {
	return e.ExamGroup == FirstExamGroup && e.Order == FirstExamOrder
}

// QuestionIndex returns the position of questionID in the question list, or -1.
func (e *Exam) QuestionIndex(questionID uint) int {
	for i := range e.Questions {
		if e.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// swagger:model Question
type Question struct {
	BaseModel
	ExamID        uint         `gorm:"index;not null" json:"examId"`
	Position      int          `gorm:"not null" json:"position"`
	ImageURL      string       `gorm:"size:512" json:"imageUrl"`
	CorrectAnswer AnswerChoice `gorm:"size:1;not null" json:"correctAnswer,omitempty"`
	Explanation   string       `gorm:"type:text" json:"explanation,omitempty"`
}

func (Question) TableName() string {
	return "exam_questions"
}
