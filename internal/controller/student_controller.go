package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type StudentController struct {
	Service *service.StudentService
}

func NewStudentController(svc *service.StudentService) *StudentController {
	return &StudentController{Service: svc}
}

// @Summary List students
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Param search query string false "Name, email or phone"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/users/students [get]
func (c *StudentController) ListStudents(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if limit > 100 {
		limit = 100
	}

	students, total, err := c.Service.ListStudents(ctx.Request.Context(), page, limit, ctx.Query("search"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	util.Success(ctx, util.PageResponse{
		List:  students,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// @Summary Get a student with progress
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Success 200 {object} util.Response{data=service.StudentDetail}
// @Failure 404 {object} util.Response
// @Router /api/users/students/{id} [get]
func (c *StudentController) GetStudent(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	detail, err := c.Service.GetStudent(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary Create a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateStudentReq true "Student"
// @Success 201 {object} util.Response{data=model.User}
// @Failure 400 {object} util.Response
// @Router /api/users/students [post]
func (c *StudentController) CreateStudent(ctx *gin.Context) {
	var req service.CreateStudentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	student, err := c.Service.CreateStudent(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, student)
}

// @Summary Update a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param body body service.UpdateStudentReq true "Changed fields"
// @Success 200 {object} util.Response{data=model.User}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/users/students/{id} [put]
func (c *StudentController) UpdateStudent(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateStudentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	student, err := c.Service.UpdateStudent(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, student)
}

// @Summary Delete a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/users/students/{id} [delete]
func (c *StudentController) DeleteStudent(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.Service.DeleteStudent(ctx.Request.Context(), id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessMessage(ctx, "StudentDeleted")
}

func (c *StudentController) changed(ctx *gin.Context, n int64, err error, msgID string) {
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, msgID, gin.H{"updated": n})
}

// @Summary Lock one exam for a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/exams/{examId}/lock [post]
func (c *StudentController) LockExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	examID, ok := pathID(ctx, "examId")
	if !ok {
		return
	}

	n, err := c.Service.LockExams(ctx.Request.Context(), id, []uint{examID})
	c.changed(ctx, n, err, "ExamsLocked")
}

// @Summary Unlock one exam for a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/exams/{examId}/unlock [post]
func (c *StudentController) UnlockExam(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	examID, ok := pathID(ctx, "examId")
	if !ok {
		return
	}

	n, err := c.Service.UnlockExams(ctx.Request.Context(), id, []uint{examID})
	c.changed(ctx, n, err, "ExamsUnlocked")
}

// @Summary Lock several exams for a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param body body service.ExamIDsReq true "Exams"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/exams/lock [post]
func (c *StudentController) BulkLock(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ExamIDsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	n, err := c.Service.LockExams(ctx.Request.Context(), id, req.ExamIDs)
	c.changed(ctx, n, err, "ExamsLocked")
}

// @Summary Unlock several exams for a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param body body service.ExamIDsReq true "Exams"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/exams/unlock [post]
func (c *StudentController) BulkUnlock(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ExamIDsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	n, err := c.Service.UnlockExams(ctx.Request.Context(), id, req.ExamIDs)
	c.changed(ctx, n, err, "ExamsUnlocked")
}

func groupParam(ctx *gin.Context) (int, bool) {
	group, err := strconv.Atoi(ctx.Param("group"))
	if err != nil {
		util.BadRequest(ctx, "InvalidExamGroup")
		return 0, false
	}
	return group, true
}

// @Summary Lock a whole group for a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param group path int true "Group 0..8"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/groups/{group}/lock [post]
func (c *StudentController) LockGroup(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	group, ok := groupParam(ctx)
	if !ok {
		return
	}

	n, err := c.Service.LockGroup(ctx.Request.Context(), id, group)
	c.changed(ctx, n, err, "ExamsLocked")
}

// @Summary Unlock a whole group for a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path int true "Student ID"
// @Param group path int true "Group 0..8"
// @Success 200 {object} util.Response
// @Router /api/users/students/{id}/groups/{group}/unlock [post]
func (c *StudentController) UnlockGroup(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	group, ok := groupParam(ctx)
	if !ok {
		return
	}

	n, err := c.Service.UnlockGroup(ctx.Request.Context(), id, group)
	c.changed(ctx, n, err, "ExamsUnlocked")
}

// @Summary Assign categories to students
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AssignCategoriesReq true "Students and categories"
// @Success 200 {object} util.Response
// @Router /api/users/students/categories [post]
func (c *StudentController) AssignCategories(ctx *gin.Context) {
	var req service.AssignCategoriesReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BindError(ctx, err)
		return
	}

	n, err := c.Service.AssignCategories(ctx.Request.Context(), req.StudentIDs, req.Categories)
	c.changed(ctx, int64(n), err, "CategoriesAssigned")
}
