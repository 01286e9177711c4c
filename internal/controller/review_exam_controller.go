package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReviewExamController struct {
	Service *service.ReviewExamService
}

func NewReviewExamController(svc *service.ReviewExamService) *ReviewExamController {
	return &ReviewExamController{Service: svc}
}

func reviewID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("reviewExamId")
	if _, err := uuid.Parse(id); err != nil {
		util.BadRequest(ctx, "InvalidID")
		return "", false
	}
	return id, true
}

// @Summary Get a review exam
// @Tags Review exams
// @Produce json
// @Security BearerAuth
// @Param reviewExamId path string true "Review exam ID"
// @Success 200 {object} util.Response{data=service.ReviewExamView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/review/{reviewExamId} [get]
func (c *ReviewExamController) GetReviewExam(ctx *gin.Context) {
	id, ok := reviewID(ctx)
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	view, err := c.Service.Get(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary Submit a review exam attempt
// @Tags Review exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param reviewExamId path string true "Review exam ID"
// @Param body body service.SubmitAnswersReq true "Answers"
// @Success 200 {object} util.Response{data=service.ReviewSubmitResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/review/{reviewExamId}/submit [post]
func (c *ReviewExamController) SubmitReviewExam(ctx *gin.Context) {
	id, ok := reviewID(ctx)
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	var req service.SubmitAnswersReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	result, err := c.Service.Submit(ctx.Request.Context(), user.UserID, id, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary List review exam attempts
// @Tags Review exams
// @Produce json
// @Security BearerAuth
// @Param reviewExamId path string true "Review exam ID"
// @Success 200 {object} util.Response{data=[]model.ReviewAttempt}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/review/{reviewExamId}/attempts [get]
func (c *ReviewExamController) ListAttempts(ctx *gin.Context) {
	id, ok := reviewID(ctx)
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	attempts, err := c.Service.ListAttempts(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}
