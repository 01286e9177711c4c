package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService       *service.ExamService
	SubmissionService *service.SubmissionService
}

func NewExamController(examService *service.ExamService, submissionService *service.SubmissionService) *ExamController {
	return &ExamController{
		ExamService:       examService,
		SubmissionService: submissionService,
	}
}

// pathID reads a positive numeric path parameter, answering 400 otherwise.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, ok := util.ParseID(ctx.Param(name))
	if !ok {
		util.BadRequest(ctx, "InvalidID")
	}
	return id, ok
}

// @Summary List active exams
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Exam}
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	exams, err := c.ExamService.ListActive(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	for i := range exams {
		exams[i].Questions = nil
	}
	util.Success(ctx, exams)
}

// @Summary List the active exams of a group
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param n path int true "Group 1..8"
// @Success 200 {object} util.Response{data=[]model.Exam}
// @Failure 400 {object} util.Response
// @Router /api/exams/group/{n} [get]
func (c *ExamController) ListByGroup(ctx *gin.Context) {
	group, err := strconv.Atoi(ctx.Param("n"))
	if err != nil {
		util.BadRequest(ctx, "InvalidExamGroup")
		return
	}

	exams, err := c.ExamService.ListByGroup(ctx.Request.Context(), group)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	for i := range exams {
		exams[i].Questions = nil
	}
	util.Success(ctx, exams)
}

// @Summary Get an exam
// @Description Students see the answer key only after completing the exam
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 403 {object} util.Response "exam locked"
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	exam, err := c.ExamService.Get(ctx.Request.Context(), util.GetUserFromContext(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary My exam progress
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.ExamProgress}
// @Router /api/exams/progress [get]
func (c *ExamController) MyProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	entries, err := c.SubmissionService.MyProgress(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}

// @Summary Create an exam
// @Description Progress entries for every student are created in the background
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateExamReq true "Exam"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Router /api/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	var req service.CreateExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	exam, err := c.ExamService.Create(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, exam)
}

// @Summary Update an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Param body body service.UpdateExamReq true "Changed fields"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [put]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	exam, err := c.ExamService.Update(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary Deactivate an exam
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.ExamService.Deactivate(ctx.Request.Context(), id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessMessage(ctx, "ExamDeactivated")
}

// @Summary Exam statistics
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Success 200 {object} util.Response{data=service.ExamStatistics}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/statistics [get]
func (c *ExamController) Statistics(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	stats, err := c.ExamService.Statistics(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// @Summary Start an exam
// @Tags Exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 400 {object} util.Response "already completed"
// @Failure 403 {object} util.Response "exam locked"
// @Router /api/exams/{id}/start [post]
func (c *ExamController) StartExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	result, err := c.SubmissionService.StartExam(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary Submit exam answers
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Param body body service.SubmitAnswersReq true "Answers"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response "invalid answers or already completed"
// @Failure 403 {object} util.Response "exam locked"
// @Router /api/exams/{id}/submit [post]
func (c *ExamController) SubmitExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user := util.GetUserFromContext(ctx)

	var req service.SubmitAnswersReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	result, err := c.SubmissionService.SubmitExam(ctx.Request.Context(), user.UserID, id, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

type RepeatExamReq struct {
	StudentID uint `json:"studentId" binding:"required"`
}

// @Summary Let a student repeat an exam
// @Description Resets the student's entry to unlocked and removes its review exam
// @Tags Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Exam ID"
// @Param body body RepeatExamReq true "Student"
// @Success 200 {object} util.Response{data=model.ExamProgress}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/{id}/repeat [post]
func (c *ExamController) RepeatExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req RepeatExamReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	entry, err := c.SubmissionService.RepeatExam(ctx.Request.Context(), req.StudentID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, entry)
}
