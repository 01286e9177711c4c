package model

import (
	"gorm.io/datatypes"
)

// ReviewQuestion is frozen at generation time so later edits of the source
// exam never change how a review attempt is graded.
type ReviewQuestion struct {
	QuestionID            uint         `json:"questionId"`
	OriginalQuestionIndex int          `json:"originalQuestionIndex"`
	ImageURL              string       `json:"imageUrl"`
	CorrectAnswer         AnswerChoice `json:"correctAnswer,omitempty"`
	Explanation           string       `json:"explanation,omitempty"`
}

// swagger:model ReviewExam
type ReviewExam struct {
	UUIDBase
	UserID         uint                                `gorm:"index;not null" json:"userId"`
	SourceExamID   uint                                `gorm:"index;not null" json:"sourceExamId"`
	ProgressID     uint                                `gorm:"index;not null" json:"progressId"`
	Title          string                              `gorm:"size:255" json:"title"`
	TimeLimit      int                                 `gorm:"not null" json:"timeLimit"`
	Questions      datatypes.JSONSlice[ReviewQuestion] `json:"questions"`
	BestScore      *int                                `json:"bestScore"`
	BestPercentage *float64                            `json:"bestPercentage"`
	Attempts       []ReviewAttempt                     `gorm:"foreignKey:ReviewExamID;constraint:OnDelete:CASCADE" json:"attempts,omitempty"`
}

func (ReviewExam) TableName() string {
	return "review_exams"
}

// swagger:model ReviewAttempt
type ReviewAttempt struct {
	UUIDBase
	ReviewExamID  string                            `gorm:"type:varchar(36);not null;uniqueIndex:idx_review_attempt" json:"reviewExamId"`
	AttemptNumber int                               `gorm:"not null;uniqueIndex:idx_review_attempt" json:"attemptNumber"`
	Score         int                               `json:"score"`
	Percentage    float64                           `json:"percentage"`
	Results       datatypes.JSONSlice[AnswerRecord] `json:"results"`
}

func (ReviewAttempt) TableName() string {
	return "review_attempts"
}
