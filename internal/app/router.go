package app

import (
	"exam_platform_backend/docs"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/middleware"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	a.registerPublicRoutes(router, c)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.Profile)

		a.registerExamRoutes(authGroup, c)
		a.registerStudentManagementRoutes(authGroup, c)

		teacher := middleware.RoleMiddleware(model.Teacher)
		authGroup.POST("/uploads/question-image", teacher, c.upload.UploadQuestionImage)
		authGroup.GET("/ws/teachers", teacher, c.notification.HandleWS)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/login", c.auth.Login)
	}
}

func (a *App) registerExamRoutes(rg *gin.RouterGroup, c *controllers) {
	student := middleware.RoleMiddleware(model.Student)
	teacher := middleware.RoleMiddleware(model.Teacher)

	exams := rg.Group("/exams")
	{
		// catalog
		exams.GET("", c.exam.ListExams)
		exams.GET("/group/:n", c.exam.ListByGroup)
		exams.GET("/:id", c.exam.GetExam)

		// taking exams
		exams.GET("/progress", student, c.exam.MyProgress)
		exams.POST("/:id/start", student, c.exam.StartExam)
		exams.POST("/:id/submit", student, c.exam.SubmitExam)

		// review exams, ownership is checked by the service
		exams.GET("/review/:reviewExamId", student, c.review.GetReviewExam)
		exams.POST("/review/:reviewExamId/submit", student, c.review.SubmitReviewExam)
		exams.GET("/review/:reviewExamId/attempts", student, c.review.ListAttempts)

		// authoring
		exams.POST("", teacher, c.exam.CreateExam)
		exams.PUT("/:id", teacher, c.exam.UpdateExam)
		exams.DELETE("/:id", teacher, c.exam.DeleteExam)
		exams.GET("/:id/statistics", teacher, c.exam.Statistics)
		exams.POST("/:id/repeat", teacher, c.exam.RepeatExam)
	}
}

func (a *App) registerStudentManagementRoutes(rg *gin.RouterGroup, c *controllers) {
	students := rg.Group("/users/students")
	students.Use(middleware.RoleMiddleware(model.Teacher))
	{
		students.GET("", c.student.ListStudents)
		students.POST("", c.student.CreateStudent)
		students.POST("/categories", c.student.AssignCategories)
		students.GET("/:id", c.student.GetStudent)
		students.PUT("/:id", c.student.UpdateStudent)
		students.DELETE("/:id", c.student.DeleteStudent)

		students.POST("/:id/exams/lock", c.student.BulkLock)
		students.POST("/:id/exams/unlock", c.student.BulkUnlock)
		students.POST("/:id/exams/:examId/lock", c.student.LockExam)
		students.POST("/:id/exams/:examId/unlock", c.student.UnlockExam)
		students.POST("/:id/groups/:group/lock", c.student.LockGroup)
		students.POST("/:id/groups/:group/unlock", c.student.UnlockGroup)
	}
}
