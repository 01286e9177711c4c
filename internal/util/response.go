package util

import (
	"errors"
	"net/http"

	"exam_platform_backend/internal/i18n"
	"exam_platform_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

// PageResponse wraps a paginated list.
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

type errorMapping struct {
	status int
	msgID  string
}

// order matters: the first sentinel matched by errors.Is wins
var errorTable = []struct {
	err error
	errorMapping
}{
	{ErrValidation, errorMapping{http.StatusBadRequest, "ValidationFailed"}},
	{ErrInvalidExamGroup, errorMapping{http.StatusBadRequest, "InvalidExamGroup"}},
	{ErrInvalidFileType, errorMapping{http.StatusBadRequest, "InvalidFileType"}},
	{ErrDuplicateExamOrder, errorMapping{http.StatusBadRequest, "DuplicateExamOrder"}},
	{ErrEmailRegistered, errorMapping{http.StatusBadRequest, "EmailRegistered"}},
	{ErrPhoneRegistered, errorMapping{http.StatusBadRequest, "PhoneRegistered"}},
	{ErrExamAlreadyCompleted, errorMapping{http.StatusBadRequest, "ExamAlreadyCompleted"}},
	{ErrNothingToRepeat, errorMapping{http.StatusBadRequest, "NothingToRepeat"}},
	{ErrExamLocked, errorMapping{http.StatusForbidden, "ExamLocked"}},
	{ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "InvalidCredentials"}},
	{ErrUnauthorized, errorMapping{http.StatusUnauthorized, "Unauthorized"}},
	{ErrAccountDisabled, errorMapping{http.StatusForbidden, "AccountDisabled"}},
	{ErrPermissionDenied, errorMapping{http.StatusForbidden, "Forbidden"}},
	{ErrUserNotFound, errorMapping{http.StatusNotFound, "UserNotFound"}},
	{ErrStudentNotFound, errorMapping{http.StatusNotFound, "StudentNotFound"}},
	{ErrExamNotFound, errorMapping{http.StatusNotFound, "ExamNotFound"}},
	{ErrProgressNotFound, errorMapping{http.StatusNotFound, "ProgressNotFound"}},
	{ErrReviewExamNotFound, errorMapping{http.StatusNotFound, "ReviewExamNotFound"}},
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: i18n.T(c.Request.Context(), "Created"),
		Data:    data,
	})
}

// SuccessMessage replies with a localized message and no payload.
func SuccessMessage(c *gin.Context, msgID string) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: i18n.T(c.Request.Context(), msgID),
	})
}

// SuccessWithMessage replies 200 with data and a localized message.
func SuccessWithMessage(c *gin.Context, msgID string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: i18n.T(c.Request.Context(), msgID),
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Success: false,
		Message: message,
	})
}

func errorT(c *gin.Context, code int, msgID string) {
	Error(c, code, i18n.T(c.Request.Context(), msgID))
}

func Unauthorized(c *gin.Context) {
	errorT(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	errorT(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, msgID string) {
	errorT(c, http.StatusBadRequest, msgID)
}

func NotFound(c *gin.Context) {
	errorT(c, http.StatusNotFound, "NotFound")
}

func InternalServerError(c *gin.Context) {
	errorT(c, http.StatusInternalServerError, "InternalError")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
	)
	resp := Response{
		Success: false,
		Message: i18n.T(c.Request.Context(), "InternalError"),
	}
	if gin.Mode() != gin.ReleaseMode {
		resp.Detail = err.Error()
	}
	c.JSON(http.StatusInternalServerError, resp)
}

// ValidationFailed replies 400 with localized field errors.
func ValidationFailed(c *gin.Context, fields []FieldError) {
	ctx := c.Request.Context()
	out := make([]FieldError, len(fields))
	for i, f := range fields {
		out[i] = f
		if f.MsgID != "" {
			out[i].Message = i18n.Td(ctx, f.MsgID, f.Data)
		}
	}
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Message: i18n.T(ctx, "ValidationFailed"),
		Errors:  out,
	})
}

// BindError answers a failed ShouldBind* call.
func BindError(c *gin.Context, err error) {
	if fields := BindingFieldErrors(err); fields != nil {
		ValidationFailed(c, fields)
		return
	}
	resp := Response{
		Success: false,
		Message: i18n.T(c.Request.Context(), "ValidationFailed"),
	}
	if gin.Mode() != gin.ReleaseMode {
		resp.Detail = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// HandleError maps a service error to its HTTP reply. Unknown errors are
// logged and reported as 500.
func HandleError(c *gin.Context, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		ValidationFailed(c, verr.Fields)
		return
	}

	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			errorT(c, e.status, e.msgID)
			return
		}
	}

	LogInternalError(c, err)
}
