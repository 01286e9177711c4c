package model

import "time"

type FanoutJobStatus string

const (
	FanoutPending FanoutJobStatus = "pending"
	FanoutRunning FanoutJobStatus = "running"
	FanoutDone    FanoutJobStatus = "done"
	FanoutFailed  FanoutJobStatus = "failed"
)

// FanoutJob seeds a progress entry for every student after an exam is created.
// LastUserID is the resume cursor; students are walked in id order. A job
// waiting out a retry backoff is not claimed before NextRunAt.
type FanoutJob struct {
	BaseModel
	ExamID     uint            `gorm:"index;not null" json:"examId"`
	Status     FanoutJobStatus `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	LastUserID uint            `gorm:"default:0" json:"lastUserId"`
	Processed  int             `gorm:"default:0" json:"processed"`
	Created    int             `gorm:"default:0" json:"created"`
	Attempts   int             `gorm:"default:0" json:"attempts"`
	LastError  string          `gorm:"type:text" json:"lastError,omitempty"`
	NextRunAt  *time.Time      `gorm:"index" json:"nextRunAt,omitempty"`
}

func (FanoutJob) TableName() string {
	return "fanout_jobs"
}
