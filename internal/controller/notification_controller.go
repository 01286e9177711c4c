package controller

import (
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	Hub *service.NotificationHub
}

func NewNotificationController(hub *service.NotificationHub) *NotificationController {
	return &NotificationController{Hub: hub}
}

// @Summary Teacher event stream
// @Description WebSocket delivering exam-submitted, exam-created, student-added and student-deleted events. The token may be passed as ?token=
// @Tags Notifications
// @Security BearerAuth
// @Router /api/ws/teachers [get]
func (c *NotificationController) HandleWS(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	c.Hub.ServeWs(ctx.Writer, ctx.Request, user.UserID)
}
