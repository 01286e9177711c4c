package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	Storage *service.StorageService
}

func NewUploadController(storage *service.StorageService) *UploadController {
	return &UploadController{Storage: storage}
}

// @Summary Upload a question image
// @Description Returns the URL to store as a question's imageUrl
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image (png, jpg, gif, webp; max 5MB)"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/uploads/question-image [post]
func (c *UploadController) UploadQuestionImage(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "FileRequired")
		return
	}

	file, err := header.Open()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	defer file.Close()

	url, err := c.Storage.UploadQuestionImage(ctx.Request.Context(), file, header)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"url": url})
}
