package response

import (
	"net/http"

	"github.com/cydxin/pulse-sdk/cons"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code" example:"0"`                    // 业务状态码
	Msg  string      `json:"msg" example:"success"`               // 提示消息
	Data interface{} `json:"data,omitempty" swaggertype:"object"` // 响应数据
}

// 业务状态码定义
// 使用说明：
// - 中间件层：使用 HTTP 状态码（401/403/503）+ 对应业务码
// - 业务层：HTTP 200 + 业务状态码
const (
	CodeSuccess         = 0     // 成功
	CodeParamError      = 10001 // 参数错误
	CodeTokenExpired    = 10003 // Token 过期，客户端应刷新后重试
	CodeTokenInvalid    = 10004 // Token 无效/已注销
	CodePermissionDeny  = 10005 // 账号受限
	CodeAuthUnavailable = 10006 // 鉴权依赖暂不可用，可重试
	CodeInternalError   = 99999 // 内部错误
)

// Success 成功响应
func Success(data interface{}, args ...string) *Response {
	msg := "success"
	for _, arg := range args {
		msg = arg
	}
	return &Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	}
}

// Error 错误响应
func Error(code int, msg string) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
	}
}

// AuthFailure 鉴权失败原因 -> HTTP 状态码 + 业务码，Msg 直接使用原因字符串
func AuthFailure(reason string) (int, *Response) {
	switch reason {
	case cons.ReasonTokenExpired:
		return http.StatusUnauthorized, Error(CodeTokenExpired, reason)
	case cons.ReasonAccountRestricted:
		return http.StatusForbidden, Error(CodePermissionDeny, reason)
	case cons.ReasonAuthUnavailable:
		return http.StatusServiceUnavailable, Error(CodeAuthUnavailable, reason)
	default:
		return http.StatusUnauthorized, Error(CodeTokenInvalid, cons.ReasonTokenInvalid)
	}
}
