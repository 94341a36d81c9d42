// Package pulse_sdk 社交应用的实时事件网关：连接鉴权、多端在线状态、房间路由、通知去重
// @title Pulse SDK API
// @version 1.0
// @description 实时网关附带的 REST 接口：通知拉取/已读、在线状态查询。实时事件走 /ws。
// @description
// @description ## 业务状态码说明
// @description | Code | 说明 |
// @description |------|------|
// @description | 0 | 成功 |
// @description | 10001 | 参数错误 |
// @description | 10003 | Token 过期（刷新后重试） |
// @description | 10004 | Token 无效 / 已注销 |
// @description | 10005 | 账号受限 |
// @description | 10006 | 鉴权依赖暂不可用 |
// @description | 99999 | 内部错误 |
// @description
// @description ## HTTP 状态码说明
// @description - **200**: 业务请求成功（根据 response.code 判断业务状态）
// @description - **401**: 认证失败（Token 无效/过期）
// @description - **403**: 账号受限
// @description - **503**: 鉴权依赖暂不可用，可重试
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:6789
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 格式：Bearer <token>
//
// @securityDefinitions.apikey QueryToken
// @in query
// @name token
// @description 用于 WebSocket 等无法传 header 的场景
package pulse_sdk
