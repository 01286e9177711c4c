package model

import (
	"gorm.io/datatypes"
)

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    *string  `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	Phone    *string  `gorm:"size:32;uniqueIndex" json:"phone,omitempty"`
	Password string   `gorm:"size:100;not null" json:"-"`
	Role     UserRole `gorm:"size:16;index;default:'student'" json:"role"`
	Language string   `gorm:"size:10;default:'ar'" json:"language"`
	Disabled bool     `gorm:"default:false" json:"disabled"`

	Categories datatypes.JSONSlice[string] `json:"categories"`

	// recomputed from completed progress entries after each submission or reset
	TotalScore        int     `gorm:"default:0" json:"totalScore"`
	OverallPercentage float64 `gorm:"default:0" json:"overallPercentage"`
	CompletedExams    int     `gorm:"default:0" json:"completedExams"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsStudent() bool {
	return u.Role == Student
}
