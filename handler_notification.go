package pulse_sdk

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cydxin/pulse-sdk/middleware"
	"github.com/cydxin/pulse-sdk/response"
	"github.com/cydxin/pulse-sdk/service"
)

// -------------------- 通知（Notification）相关接口 --------------------

// GinHandleListNotifications 拉取通知（近 30 天，按时间倒序）
// @Summary 拉取通知
// @Tags 通知
// @Accept json
// @Produce json
// @Param before query int64 false "游标：上一页最后一条 created_at（毫秒）"
// @Param limit query int false "条数(默认20,最大100)"
// @Param unread_only query bool false "只看未读"
// @Success 200 {object} response.Response{data=[]service.NotificationDTO}
// @Security BearerAuth
// @Router /notification/list [get]
func (e *Engine) GinHandleListNotifications(ctx *gin.Context) {
	uid, ok := middleware.UserIDFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	var req service.ListNotificationsReq
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	items, err := e.NotificationService.ListNotifications(ctx.Request.Context(), uid, req)
	if err != nil {
		e.internalError(ctx, "list notifications", err)
		return
	}
	ctx.JSON(http.StatusOK, response.Success(items))
}

type MarkNotificationsReadReq struct {
	IDs []string `json:"ids" binding:"required,min=1,max=200"`
}

// GinHandleMarkNotificationsRead 标记通知已读
// @Summary 标记通知已读
// @Tags 通知
// @Accept json
// @Produce json
// @Param req body MarkNotificationsReadReq true "请求参数"
// @Success 200 {object} response.Response
// @Security BearerAuth
// @Router /notification/read [post]
func (e *Engine) GinHandleMarkNotificationsRead(ctx *gin.Context) {
	uid, ok := middleware.UserIDFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return
	}

	var req MarkNotificationsReadReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	if err := e.NotificationService.MarkRead(ctx.Request.Context(), uid, req.IDs); err != nil {
		e.internalError(ctx, "mark notifications read", err)
		return
	}
	ctx.JSON(http.StatusOK, response.Success(nil))
}
