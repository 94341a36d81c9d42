package service

import (
	"errors"
	"fmt"

	"github.com/cydxin/pulse-sdk/cons"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRedisNil        = errors.New("redis client is nil")
)

// AuthError 鉴权失败（带分类原因）。原因会原样回给客户端，由客户端决定刷新 token 还是重新登录。
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func authErr(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// ReasonOf 取分类原因；非 AuthError 一律按 TOKEN_INVALID 处理。
func ReasonOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return cons.ReasonTokenInvalid
}
