package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")

	ErrUserNotFound       = errors.New("user not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrExamNotFound       = errors.New("exam not found")
	ErrProgressNotFound   = errors.New("progress entry not found")
	ErrReviewExamNotFound = errors.New("review exam not found")

	ErrEmailRegistered      = errors.New("email already registered")
	ErrPhoneRegistered      = errors.New("phone already registered")
	ErrDuplicateExamOrder   = errors.New("an active exam already uses this group and order")
	ErrExamLocked           = errors.New("exam is locked")
	ErrExamAlreadyCompleted = errors.New("exam already completed")
	ErrNothingToRepeat      = errors.New("exam has not been taken")
	ErrInvalidExamGroup     = errors.New("invalid exam group")
	ErrInvalidFileType      = errors.New("invalid file type")
)

// FieldError describes one rejected request field. MsgID and Data are
// resolved into Message by the response layer.
type FieldError struct {
	Field   string         `json:"field"`
	Message string         `json:"message"`
	MsgID   string         `json:"-"`
	Data    map[string]any `json:"-"`
}

func NewFieldError(field, msgID string, data map[string]any) FieldError {
	return FieldError{Field: field, Message: msgID, MsgID: msgID, Data: data}
}

// ValidationError carries field level failures and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
