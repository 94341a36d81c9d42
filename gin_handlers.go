package pulse_sdk

import (
	"github.com/gin-gonic/gin"

	"github.com/cydxin/pulse-sdk/middleware"
)

/*
	提供的 HTTP 接口在此处注册，也可以直接自己写 controller 然后调用 service。

	r := gin.Default()
	engine.RegisterRoutes(r.Group("/api/v1"))
*/

// RegisterRoutes 注册 ws 与 REST 接口。/ws 不走鉴权中间件：token 可以在握手里带，也可以连上后发 authenticate。
func (e *Engine) RegisterRoutes(g gin.IRouter) {
	g.GET("/ws", func(c *gin.Context) {
		e.ServeWS(c.Writer, c.Request)
	})

	authed := g.Group("", middleware.GinAuthMiddleware(e.AuthService, nil))
	authed.GET("/notification/list", e.GinHandleListNotifications)
	authed.POST("/notification/read", e.GinHandleMarkNotificationsRead)
	authed.GET("/presence/:user_id", e.GinHandleGetPresence)
}
