package model

import (
	"time"

	"gorm.io/datatypes"
)

type ProgressStatus string

const (
	StatusLocked     ProgressStatus = "locked"
	StatusUnlocked   ProgressStatus = "unlocked"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

// Submittable reports whether a student may hand in answers from this status.
func (s ProgressStatus) Submittable() bool {
	return s == StatusUnlocked || s == StatusInProgress
}

type AnswerRecord struct {
	QuestionID     uint         `json:"questionId"`
	SelectedAnswer AnswerChoice `json:"selectedAnswer"`
	IsCorrect      bool         `json:"isCorrect"`
}

// ExamProgress is the ledger entry of one student for one exam.
// swagger:model ExamProgress
type ExamProgress struct {
	BaseModel
	UserID         uint           `gorm:"uniqueIndex:idx_progress_user_exam;not null" json:"userId"`
	ExamID         uint           `gorm:"uniqueIndex:idx_progress_user_exam;index;not null" json:"examId"`
	ExamGroup      int            `gorm:"index" json:"examGroup"` // copy of Exam.ExamGroup
	Status         ProgressStatus `gorm:"size:16;index;not null;default:'locked'" json:"status"`
	Score          *int           `json:"score"`
	Percentage     *float64       `json:"percentage"`
	TotalQuestions int            `gorm:"default:0" json:"totalQuestions"`

	Answers          datatypes.JSONSlice[AnswerRecord] `json:"answers"`
	WrongQuestionIDs datatypes.JSONSlice[uint]         `json:"wrongQuestionIds"`

	ReviewExamID *string    `gorm:"type:varchar(36)" json:"reviewExamId"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`

	Exam *Exam `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
}

func (ExamProgress) TableName() string {
	return "exam_progress"
}
