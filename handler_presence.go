package pulse_sdk

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/response"
)

// PresenceDTO 在线状态
type PresenceDTO struct {
	UserID      uint64     `json:"user_id"`
	Status      string     `json:"status" example:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// GinHandleGetPresence 查询用户在线状态
// 内存里有记录时以内存为准；已被回收的离线用户回退到 Redis 中的 last seen。
// @Summary 查询在线状态
// @Tags 在线状态
// @Produce json
// @Param user_id path uint64 true "用户ID"
// @Success 200 {object} response.Response{data=PresenceDTO}
// @Security BearerAuth
// @Router /presence/{user_id} [get]
func (e *Engine) GinHandleGetPresence(ctx *gin.Context) {
	uid, err := strconv.ParseUint(ctx.Param("user_id"), 10, 64)
	if err != nil || uid == 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid user_id"))
		return
	}

	out := PresenceDTO{UserID: uid}
	status, lastSeen := e.Presence.Status(uid)
	if lastSeen.IsZero() && e.config.RDB != nil {
		status, lastSeen, err = e.PresenceService.Lookup(ctx.Request.Context(), uid)
		if err != nil {
			e.internalError(ctx, "presence lookup", err)
			return
		}
		// 内存里没有连接就是离线；Redis 里的 online 可能是上次进程退出前的残留
		status = cons.StatusOffline
	}
	out.Status = status
	out.Connections = len(e.Presence.Connections(uid))
	if !lastSeen.IsZero() {
		out.LastSeen = &lastSeen
	}
	ctx.JSON(http.StatusOK, response.Success(out))
}
